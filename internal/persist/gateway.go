// Package persist periodically snapshots the participant directory and ban
// records to disk and reloads them at startup. In-memory state stays
// authoritative: a snapshot failure is logged and retried on the next tick,
// and loading never overwrites entries the engine already holds.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"unknownchat/backend/internal/models"
)

const (
	usersFile = "users.json"
	bansFile  = "bans.json"
)

// Source is the engine-facing surface the gateway snapshots from and restores
// into.
type Source interface {
	ExportState() (map[int64]models.Participant, map[int64]models.BanRecord)
	ImportState(map[int64]models.Participant, map[int64]models.BanRecord)
}

// Gateway owns the snapshot lifecycle: an explicit Load at boot, a ticker
// while running, and a final save on shutdown.
type Gateway struct {
	log      *slog.Logger
	dir      string
	interval time.Duration
	source   Source
}

func NewGateway(dir string, interval time.Duration, source Source, log *slog.Logger) (*Gateway, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &Gateway{log: log, dir: dir, interval: interval, source: source}, nil
}

// Load reads both snapshot files and merges them into the source. Missing
// files are a normal first boot. Keys that fail to parse are skipped, and the
// engine's import sweeps expired bans so stale records never come back.
func (g *Gateway) Load() error {
	participants, err := loadTable[models.Participant](filepath.Join(g.dir, usersFile))
	if err != nil {
		return fmt.Errorf("loading participant snapshot: %w", err)
	}
	bans, err := loadTable[models.BanRecord](filepath.Join(g.dir, bansFile))
	if err != nil {
		return fmt.Errorf("loading ban snapshot: %w", err)
	}
	g.source.ImportState(participants, bans)
	g.log.Info("snapshot loaded", "participants", len(participants), "bans", len(bans))
	return nil
}

// Save copies a consistent view from the source and writes both tables with
// write-temp-then-atomic-replace, so a crash mid-write leaves the previous
// snapshot intact.
func (g *Gateway) Save() error {
	participants, bans := g.source.ExportState()
	if err := writeTable(filepath.Join(g.dir, usersFile), stringify(participants)); err != nil {
		return fmt.Errorf("writing participant snapshot: %w", err)
	}
	if err := writeTable(filepath.Join(g.dir, bansFile), stringify(bans)); err != nil {
		return fmt.Errorf("writing ban snapshot: %w", err)
	}
	return nil
}

// Run saves on a fixed interval until the context is cancelled, then takes a
// final snapshot.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := g.Save(); err != nil {
				g.log.Error("final snapshot failed", "err", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := g.Save(); err != nil {
				g.log.Error("snapshot failed", "err", err)
			}
		}
	}
}

func stringify[T any](table map[int64]T) map[string]T {
	out := make(map[string]T, len(table))
	for id, rec := range table {
		out[strconv.FormatInt(id, 10)] = rec
	}
	return out
}

func loadTable[T any](path string) (map[int64]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int64]T{}, nil
		}
		return nil, err
	}
	var raw map[string]T
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[int64]T, len(raw))
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out[id] = rec
	}
	return out, nil
}

func writeTable[T any](path string, table map[string]T) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
