package watcher

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

type fsnotifyService struct {
}

func NewFSNotify() IService {
	return &fsnotifyService{}
}

func (svc *fsnotifyService) Watch(ctx context.Context, paths ...string) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch directories rather than files: tools usually replace a file
	// through rename, which drops a watch placed on the file itself.
	targets := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}

	changes := make(chan string, 1)

	go func() {
		defer close(changes)
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.Events:
				if !ok {
					return
				}

				name, err := filepath.Abs(event.Name)
				if err != nil || !targets[name] {
					continue
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				lgr.Logger.Debug("watched file changed",
					slog.String("path", name),
					slog.String("op", event.Op.String()),
				)

				select {
				case changes <- name:
				default:
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				lgr.Logger.Warn("file watcher error", slog.Any("error", err))
			}
		}
	}()

	return changes, nil
}
