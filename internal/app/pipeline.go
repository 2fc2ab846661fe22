package app

import (
	"raidwatch/internal/config"
	"raidwatch/internal/eventbus"
	"raidwatch/internal/fetcher"
	"raidwatch/internal/notifier"
	"raidwatch/internal/storage"
	"raidwatch/internal/watcher"
	kit "raidwatch/internal/transport"
	logx "raidwatch/pkg/logx"
)

// Pipeline is the fetch, detect, notify, persist chain without the
// scheduler or gateway. The app and the one-shot CLI both build one.
type Pipeline struct {
	Store    storage.Store
	State    *storage.State
	Fetcher  *fetcher.Registry
	Notifier *notifier.Service
	Watcher  *watcher.Watcher
}

// NewPipeline opens the store and wires the pipeline. current returns
// the live config; credentials and channel names resolve through it at
// use time.
func NewPipeline(current func() *config.Config, out kit.Messenger, log logx.Logger, bus eventbus.Bus) (*Pipeline, error) {
	cfg := current()
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	fo, err := mapFetchOptions(cfg, func(name string) (string, error) { return current().ResolveCredential(name) })
	if err != nil {
		return nil, err
	}
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	state := storage.NewState(store)
	fetch := fetcher.NewRegistry(fo)
	notif := notifier.New(nc, out, state,
		func(name string) (string, bool) { return current().ChannelID(name) },
		log.With(logx.String("comp", "notifier")), bus)
	w := watcher.New(fetch, notif, state, log.With(logx.String("comp", "watcher")), bus)

	log.Info("pipeline ready", logx.String("storage", sc.Driver))
	return &Pipeline{Store: store, State: state, Fetcher: fetch, Notifier: notif, Watcher: w}, nil
}

func (p *Pipeline) Close() error {
	if p == nil || p.Store == nil {
		return nil
	}
	return p.Store.Close()
}
