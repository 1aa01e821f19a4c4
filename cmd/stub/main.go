// Development backend for vidgrab.
//
// Serves /health, /video-info, /download and /download-status/{id} with a
// fixed format list and simulated progress, so the shell can be exercised
// without the real extractor:
//
//	go run ./cmd/stub -addr 127.0.0.1:5000 -step 500ms -fail 'worst[height>=240]'
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/slipstream/vidgrab/internal/backend/stub"
	"github.com/slipstream/vidgrab/internal/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "Listen address")
	step := flag.Duration("step", stub.DefaultStepInterval, "Interval between simulated progress steps")
	percent := flag.Float64("percent", stub.DefaultStepPercent, "Progress gained per step")
	fail := flag.String("fail", "", "Comma-separated format ids whose downloads fail")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logger.New(logger.Config{Level: *level, Format: "console"})
	defer log.Close()

	var failFormats []string
	if *fail != "" {
		failFormats = strings.Split(*fail, ",")
	}

	srv := stub.New(stub.Config{
		StepInterval: *step,
		StepPercent:  *percent,
		FailFormats:  failFormats,
	}, log.Logger)

	go func() {
		log.Info().Str("address", *addr).Msg("Stub backend listening")
		if err := srv.Echo().Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Stub backend failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Echo().Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Stub backend shutdown error")
	}
}
