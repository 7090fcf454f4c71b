// Package pipeline pulls frames from a demuxer through a decoder into a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ivfplay/pkg/dump"
	"ivfplay/pkg/log"
	"ivfplay/pkg/video/ivf"
	"ivfplay/pkg/video/vp9"
	"ivfplay/pkg/video/vpx"
	"ivfplay/pkg/video/yuv"
)

// Stats run statistics.
type Stats struct {
	Packets   int
	Frames    int
	KeyFrames int
	Bytes     int
	Elapsed   time.Duration
}

// Pipeline decodes every frame of a stream into Frame and
// hands it to Sink. Single use, not safe for concurrent use.
type Pipeline struct {
	Demuxer *ivf.Demuxer
	Decoder *vpx.Decoder
	Frame   *yuv.Frame
	Sink    dump.Sink
	Logger  *log.Logger

	// Stream identifier used in logs.
	Stream string

	// Sleep until each frame's presentation time.
	Realtime bool

	// Skip the VP9 header probe.
	NoProbe bool

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewFrameFor allocates a frame buffer sized for the stream.
func NewFrameFor(header ivf.Header) (*yuv.Frame, error) {
	frame, err := yuv.NewFrame(int(header.Width), int(header.Height))
	if err != nil {
		return nil, fmt.Errorf("frame buffer: %w", err)
	}
	return frame, nil
}

// Run decodes until end of stream or the first error.
func (p *Pipeline) Run(ctx context.Context) (stats Stats, err error) {
	now := p.now
	if now == nil {
		now = time.Now
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	header := p.Demuxer.Header()
	start := now()
	defer func() { stats.Elapsed = now().Sub(start) }()

	var firstTimestamp uint64
	var paceStart time.Time

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		frame, err := p.Demuxer.NextFrame()
		if errors.Is(err, io.EOF) {
			p.Logger.Info().Src("pipeline").Stream(p.Stream).
				Msgf("done: %v packets, %v frames", stats.Packets, stats.Frames)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("packet %v: %w", stats.Packets, err)
		}
		stats.Packets++
		stats.Bytes += len(frame.Data)

		if !p.NoProbe && p.probe(frame) {
			stats.KeyFrames++
		}

		if p.Realtime {
			// Paced from the first frame, cut streams don't start at zero.
			if stats.Packets == 1 {
				firstTimestamp, paceStart = frame.Timestamp, now()
			}
			var offset time.Duration
			if frame.Timestamp > firstTimestamp {
				offset = header.Duration(frame.Timestamp - firstTimestamp)
			}
			wait := offset - now().Sub(paceStart)
			if wait > 0 {
				if err := sleep(ctx, wait); err != nil {
					return stats, err
				}
			}
		}

		// Data is only valid until the next NextFrame call.
		if err := p.Decoder.Decode(frame.Data); err != nil {
			return stats, fmt.Errorf("decode packet %v: %w", stats.Packets-1, err)
		}
		for {
			ok, err := p.Decoder.NextFrame(p.Frame)
			if err != nil {
				return stats, fmt.Errorf("copy image: %w", err)
			}
			if !ok {
				break
			}
			stats.Frames++
			if err := p.Sink.WriteFrame(frame.Timestamp, p.Frame); err != nil {
				return stats, fmt.Errorf("sink: %w", err)
			}
		}
	}
}

// probe logs key frames and size changes, returns true for key frames.
func (p *Pipeline) probe(frame *ivf.Frame) bool {
	keyFrame := false
	for _, data := range vp9.Frames(frame.Data) {
		h, err := vp9.ParseHeader(data)
		if err != nil {
			p.Logger.Warn().Src("pipeline").Stream(p.Stream).
				Msgf("timestamp %v: probe: %v", frame.Timestamp, err)
			continue
		}
		if !h.KeyFrame {
			continue
		}
		keyFrame = true
		p.Logger.Debug().Src("pipeline").Stream(p.Stream).
			Msgf("key frame: timestamp %v, %vx%v, profile %v",
				frame.Timestamp, h.Width, h.Height, h.Profile)

		if int(h.Width) != p.Frame.Width() || int(h.Height) != p.Frame.Height() {
			p.Logger.Warn().Src("pipeline").Stream(p.Stream).
				Msgf("frame size %vx%v does not match buffer %vx%v",
					h.Width, h.Height, p.Frame.Width(), p.Frame.Height())
		}
	}
	return keyFrame
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
