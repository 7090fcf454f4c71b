// Package ivfdump is a CLI utility that inspects, decodes and cuts IVF files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"ivfplay/pkg/config"
	"ivfplay/pkg/dump"
	"ivfplay/pkg/log"
	"ivfplay/pkg/pipeline"
	"ivfplay/pkg/system"
	"ivfplay/pkg/video/ivf"
	"ivfplay/pkg/video/vp9"
	"ivfplay/pkg/video/vpx"

	"golang.org/x/sync/errgroup"
)

const usage = `inspect, decode and cut VP9 IVF files
usage: ivfdump [flags] <command> [file]

commands:
  probe  <file>  print the stream header and every frame
  decode <file>  decode the stream into the output directory
  cut    <file>  copy frames [-from, -to) into -out
  logs           print the most recent logs

flags:`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			flag.Usage()
		}
		os.Exit(1)
	}
}

type flags struct {
	config string
	from   uint
	to     uint
	out    string
	limit  int
}

func run() error {
	var f flags
	flag.StringVar(&f.config, "config", "ivfdump.yaml", "path to config file")
	flag.UintVar(&f.from, "from", 0, "cut: first frame index")
	flag.UintVar(&f.to, "to", 0, "cut: end frame index, 0 copies until the end")
	flag.StringVar(&f.out, "out", "", "cut: output file")
	flag.IntVar(&f.limit, "limit", 50, "logs: number of logs")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.ReadConfig(f.config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	command := args[0]
	if command == "logs" {
		return printLogs(cfg, f.limit)
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: %v requires a file", errUsage, command)
	}
	input := args[1]

	switch command {
	case "probe":
		return probe(os.Stdout, input)
	case "decode":
		return decode(cfg, input)
	case "cut":
		if f.out == "" {
			return fmt.Errorf("%w: cut requires -out", errUsage)
		}
		return cut(input, f.out, f.from, f.to)
	}
	return fmt.Errorf("%w: unknown command: %v", errUsage, command)
}

func probe(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	demuxer, err := ivf.NewDemuxer(file)
	if err != nil {
		return err
	}

	h := demuxer.Header()
	fmt.Fprintf(w, "size: %vx%v\ntime base: %v/%v\nframes: %v\n",
		h.Width, h.Height, h.TimeBaseNum, h.TimeBaseDenom, h.FrameCount)

	for {
		frame, err := demuxer.NextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%6d %12v %8d %v\n",
			demuxer.FramesEmitted()-1,
			h.Duration(frame.Timestamp),
			len(frame.Data),
			describe(frame.Data))
	}
}

func describe(data []byte) string {
	var out []string
	for _, frame := range vp9.Frames(data) {
		h, err := vp9.ParseHeader(frame)
		switch {
		case err != nil:
			out = append(out, err.Error())
		case h.ShowExistingFrame:
			out = append(out, fmt.Sprintf("show existing %v", h.FrameToShow))
		case h.KeyFrame:
			out = append(out, fmt.Sprintf("key %vx%v profile %v %v-bit",
				h.Width, h.Height, h.Profile, h.BitDepth))
		case h.IntraOnly:
			out = append(out, fmt.Sprintf("intra %vx%v", h.Width, h.Height))
		case !h.ShowFrame:
			out = append(out, "inter hidden")
		default:
			out = append(out, "inter")
		}
	}
	return strings.Join(out, ", ")
}

func decode(cfg *config.Config, input string) error { //nolint:funlen
	logDB, err := log.OpenDB(cfg.LogDB)
	if err != nil {
		return err
	}

	// Writers return after handling every log sent before logCancel.
	wg := &sync.WaitGroup{}
	logCtx, logCancel := context.WithCancel(context.Background())
	defer func() {
		logCancel()
		wg.Wait()
		logDB.Close()
	}()

	logger := log.NewLogger()
	go logger.Start(logCtx)

	wg.Add(2)
	go func() {
		defer wg.Done()
		logger.LogToStdout(logCtx, cfg.Level)
	}()
	go func() {
		defer wg.Done()
		logDB.SaveLogs(logCtx, logger)
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.PrepareOutputDir(); err != nil {
		return err
	}

	file, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	demuxer, err := ivf.NewDemuxer(file)
	if err != nil {
		return err
	}

	frame, err := pipeline.NewFrameFor(demuxer.Header())
	if err != nil {
		return err
	}

	engine, err := vpx.NewLibVPX(cfg.VPXLib)
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	decoder := vpx.NewDecoder(engine)
	defer decoder.Close()

	stream := filepath.Base(input)
	sink, err := newSink(cfg, stream)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Demuxer:  demuxer,
		Decoder:  decoder,
		Frame:    frame,
		Sink:     sink,
		Logger:   logger,
		Stream:   stream,
		Realtime: cfg.Realtime,
	}

	h := demuxer.Header()
	logger.Info().Src("app").Stream(stream).
		Msgf("decoding %vx%v, %v frames", h.Width, h.Height, h.FrameCount)

	// The status loop stops when the pipeline returns.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	var stats pipeline.Stats
	g.Go(func() error {
		defer stop()
		var err error
		stats, err = p.Run(gctx)
		return err
	})
	if cfg.Level >= log.LevelDebug {
		g.Go(func() error {
			system.New(logger).StatusLoop(gctx)
			return nil
		})
	}

	runErr := g.Wait()
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close sink: %w", err)
	}

	if runErr != nil {
		logger.Error().Src("app").Stream(stream).Msgf("stopped: %v", runErr)
		return runErr
	}

	var fps float64
	if stats.Elapsed > 0 {
		fps = float64(stats.Frames) / stats.Elapsed.Seconds()
	}
	logger.Info().Src("app").Stream(stream).
		Msgf("decoded %v frames, %v key frames, %v bytes in %v (%.1f fps)",
			stats.Frames, stats.KeyFrames, stats.Bytes,
			stats.Elapsed.Round(time.Millisecond), fps)
	return nil
}

func newSink(cfg *config.Config, stream string) (dump.MultiSink, error) {
	var sinks dump.MultiSink
	if cfg.PNGEvery > 0 {
		dir := filepath.Join(cfg.OutputDir, stream)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create png directory: %w", err)
		}
		s, err := dump.NewPNGSink(dir, cfg.PNGEvery)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Raw {
		path := filepath.Join(cfg.OutputDir, stream+".i420.zst")
		s, err := dump.CreateRawSink(path)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// cut copies frames with index in [from, to) to a new file.
func cut(input, output string, from, to uint) error {
	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	demuxer, err := ivf.NewDemuxer(in)
	if err != nil {
		return err
	}

	header := demuxer.Header()
	total := uint(header.FrameCount)
	if to == 0 || to > total {
		to = total
	}
	if from >= to {
		return fmt.Errorf("%w: empty range [%v, %v)", errUsage, from, to)
	}
	header.FrameCount = uint32(to - from)

	out, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer out.Close()

	writer, err := ivf.NewWriter(out, header)
	if err != nil {
		return err
	}

	for i := uint(0); i < to; i++ {
		frame, err := demuxer.NextFrame()
		if err != nil {
			return fmt.Errorf("frame %v: %w", i, err)
		}
		if i < from {
			continue
		}
		if err := writer.WriteFrame(frame.Timestamp, frame.Data); err != nil {
			return err
		}
	}

	fmt.Printf("wrote %v frames to %v\n", writer.FramesWritten(), output)
	return out.Close()
}

func printLogs(cfg *config.Config, limit int) error {
	logDB, err := log.OpenDB(cfg.LogDB)
	if err != nil {
		return err
	}
	defer logDB.Close()

	logs, err := logDB.Query(log.Query{Limit: limit})
	if err != nil {
		return fmt.Errorf("query logs: %w", err)
	}

	// Oldest first.
	for i := len(logs) - 1; i >= 0; i-- {
		entry := logs[i]
		ts := time.UnixMicro(int64(entry.Time)).Format("2006-01-02 15:04:05")
		fmt.Println(ts, log.FormatLog(entry))
	}
	return nil
}
