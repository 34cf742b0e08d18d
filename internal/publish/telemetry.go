package publish

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"promocast/internal/channel"
	"promocast/internal/errclass"
	"promocast/internal/eventbus"
	logx "promocast/pkg/logx"
)

// CodeUnsupported tags the failed event of a platform without a publisher.
const CodeUnsupported = "CHANNEL_UNSUPPORTED"

// execute runs one platform through the telemetry wrapper. It always emits
// StepStarted followed by exactly one terminal event.
func (o *Orchestrator) execute(ctx context.Context, emit eventbus.Emitter, runID string, j job, req Request, cfg Config) Outcome {
	step := eventbus.Step{
		Platform: j.platform,
		Method:   string(j.kind),
		StepID:   runID + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
		RunID:    runID,
	}
	start := time.Now()
	emit.Emit(eventbus.Started(step, fmt.Sprintf("publishing to %s via %s", j.platform, j.kind)))

	pub, ok := o.d.Registry.Lookup(j.platform, j.kind)
	if !ok {
		emit.Emit(eventbus.Failed(step, ErrChannelUnsupported.Error(), CodeUnsupported, false, time.Since(start)))
		o.d.Metrics.step(j.platform, string(j.kind), "unsupported", time.Since(start))
		o.log.Warn("channel not supported", logx.String("platform", j.platform), logx.String("channel", string(j.kind)))
		return Outcome{Success: false, Error: ErrChannelUnsupported.Error(), Channel: j.kind}
	}
	if in, ok := pub.(channel.Instrumentable); ok {
		in.SetEventEmitter(emit)
		in.SetRunID(runID)
	}

	// parent is the caller's context; only its end counts as cancellation.
	// A StepTimeout expiry stays a classified timeout.
	parent := ctx
	if cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StepTimeout)
		defer cancel()
	}
	opts := channel.Options{
		DryMode:   req.DryMode,
		SessionID: runID,
		Platform:  j.platform,
		StepID:    step.StepID,
	}
	res, err := o.call(ctx, pub, j.content, req, opts)
	if err == nil {
		err = res.Err()
	}
	took := time.Since(start)

	if err != nil {
		code, retryable := errclass.Classify(err)
		if parent.Err() != nil {
			code, retryable = errclass.CodeCancelled, false
		}
		emit.Emit(eventbus.Failed(step, err.Error(), code, retryable, took))
		o.d.Metrics.step(j.platform, string(j.kind), "failed", took)
		o.log.Warn("platform publish failed",
			logx.String("platform", j.platform),
			logx.String("channel", string(j.kind)),
			logx.String("code", code),
			logx.Bool("retryable", retryable),
			logx.Err(err),
		)
		return Outcome{
			Success: false,
			PostID:  res.PostID,
			URL:     res.URL,
			Message: res.Message,
			Error:   err.Error(),
			Channel: j.kind,
		}
	}

	// A successful outcome never carries Error; partial notes go to Message.
	if res.Error != "" {
		res.Message = strings.TrimPrefix(res.Message+"; "+res.Error, "; ")
	}
	msg := res.Message
	if msg == "" {
		msg = "published to " + j.platform
	}
	emit.Emit(eventbus.Completed(step, msg, took))
	o.d.Metrics.step(j.platform, string(j.kind), "succeeded", took)
	o.log.Info("platform published",
		logx.String("platform", j.platform),
		logx.String("channel", string(j.kind)),
		logx.String("post", res.PostID),
		logx.Duration("took", took),
	)
	return Outcome{
		Success: true,
		PostID:  res.PostID,
		URL:     res.URL,
		Message: res.Message,
		Channel: j.kind,
	}
}

// call converts a publisher panic into an error so the step still terminates.
func (o *Orchestrator) call(ctx context.Context, pub channel.Publisher, content any, req Request, opts channel.Options) (res channel.PostResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("panic in channel publisher",
				logx.String("platform", opts.Platform),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			res, err = channel.PostResult{}, errclass.NoRetry(fmt.Errorf("publisher panic: %v", r))
		}
	}()
	return pub.Publish(ctx, content, req.Files, req.Hashtags, opts)
}
