package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned when a payload carries an action tag outside the closed set.
	ErrUnknownAction = errors.New("unknown message action")
	// ErrUnexpectedResponse is returned when a reply does not match its request.
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

const actionKey = "action"

// EncodeRequest serializes req as a flat JSON object tagged with its action.
func EncodeRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Action(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Action(), err)
	}

	tag, err := json.Marshal(req.Action())
	if err != nil {
		return nil, err
	}
	fields[actionKey] = tag

	return json.Marshal(fields)
}

// DecodeRequest parses a payload produced by EncodeRequest.
func DecodeRequest(data []byte) (Request, error) {
	var head struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	switch head.Action {
	case ActionVideoDetected:
		return decodeRequest[VideoDetected](data)
	case ActionGetCurrentVideoURL:
		return decodeRequest[GetCurrentVideoURL](data)
	case ActionGetVideoInfo:
		return decodeRequest[GetVideoInfo](data)
	case ActionStartDownload:
		return decodeRequest[StartDownload](data)
	case ActionGetDownloadStatus:
		return decodeRequest[GetDownloadStatus](data)
	case ActionCheckBackend:
		return decodeRequest[CheckBackend](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action)
	}
}

// EncodeResponse serializes resp.
func EncodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse parses the reply to a request with the given action.
func DecodeResponse(action Action, data []byte) (Response, error) {
	switch action {
	case ActionVideoDetected:
		return decodeResponse[Ack](data)
	case ActionGetCurrentVideoURL:
		return decodeResponse[CurrentVideoURL](data)
	case ActionGetVideoInfo:
		return decodeResponse[VideoInfoResult](data)
	case ActionStartDownload:
		return decodeResponse[DownloadStartedResult](data)
	case ActionGetDownloadStatus:
		return decodeResponse[DownloadStatusResult](data)
	case ActionCheckBackend:
		return decodeResponse[BackendStatus](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// ResponseMatches reports whether resp is the reply type for action.
func ResponseMatches(action Action, resp Response) bool {
	switch resp.(type) {
	case Ack:
		return action == ActionVideoDetected
	case CurrentVideoURL:
		return action == ActionGetCurrentVideoURL
	case VideoInfoResult:
		return action == ActionGetVideoInfo
	case DownloadStartedResult:
		return action == ActionStartDownload
	case DownloadStatusResult:
		return action == ActionGetDownloadStatus
	case BackendStatus:
		return action == ActionCheckBackend
	default:
		return false
	}
}

func decodeRequest[T Request](data []byte) (Request, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.Action(), err)
	}
	return v, nil
}

func decodeResponse[T Response](data []byte) (Response, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
