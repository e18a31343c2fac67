package input

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/nxadm/tail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
)

var (
	linesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_file_lines_total",
			Help: "Lines read from tailed event files",
		},
		[]string{"file"},
	)
	linesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqw_file_parse_errors_total",
			Help: "Lines of tailed event files that could not be parsed",
		},
		[]string{"file"},
	)
)

// FileInput follows NDJSON event files and resumes from the last offset
// after a restart.
type FileInput struct {
	baseInput
	files       []string
	activeTails []*tail.Tail
	index       *offsetIndex
	wg          sync.WaitGroup
}

func NewFileInput(subject *Subject, workingDir string, files []string) (*FileInput, error) {
	dbPath := filepath.Join(workingDir, "index.db")
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(logger.Default()))
	if err != nil {
		logger.Error("Failed to open BadgerDB for file index", slog.Any("error", err))
		return nil, err
	}
	logger.Debug("Initialized BadgerDB for file index", slog.String("path", dbPath))

	return &FileInput{
		baseInput: baseInput{subject: subject},
		files:     files,
		index:     &offsetIndex{db: db},
	}, nil
}

func (fi *FileInput) Name() string {
	return "file"
}

func (fi *FileInput) Start(ctx context.Context) error {
	for _, filename := range fi.files {
		loc, err := fi.index.lastRead(filename)
		if err != nil {
			logger.Warn("Cannot read stored offset", slog.String("file", filename), slog.Any("error", err))
		}

		t, err := tail.TailFile(filename, tail.Config{
			Follow:        true,
			ReOpen:        true,
			CompleteLines: true,
			Location:      loc,
			Logger:        logger.Default(),
		})
		if err != nil {
			logger.Error("Could not open event file", slog.String("file", filename), slog.Any("error", err))
			return err
		}
		fi.activeTails = append(fi.activeTails, t)

		fi.wg.Add(1)
		go fi.follow(ctx, t)
	}
	return nil
}

func (fi *FileInput) follow(ctx context.Context, t *tail.Tail) {
	defer fi.wg.Done()
	logger.Info("Following event file", slog.String("file", t.Filename))

	for line := range t.Lines {
		if line.Err != nil {
			logger.Error("Tail error", slog.String("file", t.Filename), slog.Any("error", line.Err))
			continue
		}
		topic, payload, retained, err := parseEventLine([]byte(line.Text))
		if err != nil {
			linesFailed.WithLabelValues(t.Filename).Inc()
			logger.Error("Failed to parse line", slog.String("file", t.Filename), slog.Int("line_number", line.Num), slog.Any("error", err))
			continue
		}
		linesParsed.WithLabelValues(t.Filename).Inc()
		if !fi.subject.Publish(ctx, fi.Name(), item.Event{Topic: topic, Payload: payload, Retained: retained, Received: line.Time}) {
			return
		}
	}
}

// Stop stores the read offset of every file and closes the index.
func (fi *FileInput) Stop() error {
	for _, t := range fi.activeTails {
		offset, err := t.Tell()
		if err != nil {
			logger.Error("cannot get file offset, resetting to 0", slog.String("file", t.Filename), slog.Any("error", err))
			offset = 0
		}
		_ = t.Stop()
		t.Cleanup()

		if err := fi.index.save(t.Filename, offset); err != nil {
			logger.Error("error when saving file offset", slog.String("file", t.Filename), slog.Any("error", err))
		}
	}
	fi.wg.Wait()
	return fi.index.close()
}
