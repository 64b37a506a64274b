// Package main is the entrypoint for the scheduled dispatcher Lambda.
//
// An EventBridge rule invokes the function once a day. Each invocation:
//  1. Resolves the reference date (payload override, else today in the
//     dispatch timezone).
//  2. Takes the run lock for that date and records run history.
//  3. Runs the birthday, anniversary, festival and custom cycles.
//
// With APP_ENV=local the event is read from stdin instead:
//
//	echo '{"reference_date":"2024-03-10"}' | go run ./cmd/dispatcher
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	_ "time/tzdata" // provided.al2023 images ship without zoneinfo

	"github.com/aws/aws-lambda-go/lambda"

	"greetbot/internal/app"
	"greetbot/internal/config"
	"greetbot/internal/core"
	"greetbot/internal/types"
)

// Payload is the scheduled event body.
type Payload struct {
	// ReferenceDate (YYYY-MM-DD) overrides today. Used for backfills.
	ReferenceDate string `json:"reference_date,omitempty"`
}

// Response is returned to the invoker. Body is JSON: {"message": ...} on
// success, {"error": ..., "code": ...} otherwise.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Handler adapts a core.Runner to the Lambda runtime.
type Handler struct {
	Runner core.Runner
	Logger *slog.Logger
}

// Handle runs one greeting run. A failed run is reported both in the
// response and as an error so the invocation shows as failed.
func (h *Handler) Handle(ctx context.Context, payload Payload) (Response, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	date := h.Runner.Today()
	if payload.ReferenceDate != "" {
		d, err := types.ParseDate(payload.ReferenceDate)
		if err != nil {
			logger.WarnContext(ctx, "rejecting event with bad reference date",
				"reference_date", payload.ReferenceDate, "error", err)
			appErr := types.NewAppError(types.ErrCodeValidationInvalidDate, "invalid reference_date", err)
			return errorResponse(http.StatusBadRequest, appErr.Error(), appErr.Code), appErr
		}
		date = d
	}

	logger.InfoContext(ctx, "dispatcher invoked", "date", date.String())
	res := h.Runner.Run(ctx, date)
	if res.Err != nil {
		if types.CodeOf(res.Err) == types.ErrCodeLockUnavailable {
			// Another invocation owns today; nothing to retry.
			logger.InfoContext(ctx, "run skipped, lock held elsewhere", "date", date.String())
			return errorResponse(http.StatusConflict, res.Err.Error(), types.CodeOf(res.Err)), nil
		}
		logger.ErrorContext(ctx, "run failed", "date", date.String(), "error", res.Err)
		return errorResponse(http.StatusInternalServerError, res.Summary(), types.CodeOf(res.Err)),
			fmt.Errorf("greeting run for %s failed: %w", date, res.Err)
	}
	return jsonResponse(http.StatusOK, core.MessageResponse{Message: res.Summary()}), nil
}

// jsonResponse encodes v as the response body.
func jsonResponse(status int, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: `{"error":"failed to encode response"}`}
	}
	return Response{StatusCode: status, Body: string(body)}
}

func errorResponse(status int, msg string, code types.ErrorCode) Response {
	return jsonResponse(status, core.ErrorResponse{Error: msg, Code: string(code)})
}

func main() {
	bootLogger := app.NewLogger("info", nil)

	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		bootLogger.Error("Failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		bootLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel, nil)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("Failed to build greeting pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	handler := &Handler{Runner: a, Logger: logger}
	logger.Info("Dispatcher initialized", "environment", cfg.Environment, "version", cfg.Build.Version)

	if cfg.Environment == "local" {
		if err := runLocal(ctx, handler, os.Stdin, os.Stdout); err != nil {
			logger.Error("Handler execution failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal reads one event from r, runs it and writes the response to w. An
// empty input means today.
func runLocal(ctx context.Context, h *Handler, r io.Reader, w io.Writer) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading event: %w", err)
	}
	var payload Payload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
	}
	resp, runErr := h.Handle(ctx, payload)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return runErr
}
