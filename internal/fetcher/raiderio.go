package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"raidwatch/internal/source"
)

const raiderIOProfileURL = "https://raider.io/api/v1/guilds/profile"

// RaiderIO reads guild raid progression and world ranks. Guilds are fetched
// concurrently up to a limit, and every request waits on a shared pacing
// limiter so the upstream sees a steady rate.
type RaiderIO struct {
	client      *httpClient
	creds       CredentialFunc
	limiter     *rate.Limiter
	concurrency int
}

func NewRaiderIO(client *httpClient, creds CredentialFunc, interval time.Duration, concurrency int) *RaiderIO {
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &RaiderIO{
		client:      client,
		creds:       creds,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		concurrency: concurrency,
	}
}

type rioTier struct {
	World int `json:"world"`
}

type rioGuild struct {
	Name            string `json:"name"`
	Realm           string `json:"realm"`
	Region          string `json:"region"`
	ProfileURL      string `json:"profile_url"`
	RaidProgression map[string]struct {
		Summary string `json:"summary"`
	} `json:"raid_progression"`
	RaidRankings map[string]struct {
		Normal rioTier `json:"normal"`
		Heroic rioTier `json:"heroic"`
		Mythic rioTier `json:"mythic"`
	} `json:"raid_rankings"`
}

func (r *RaiderIO) Fetch(ctx context.Context, src source.Source) (source.Snapshot, error) {
	key, err := r.creds(src.Credential)
	if err != nil {
		return source.Snapshot{}, credentialError(err)
	}
	base := raiderIOProfileURL
	if src.URL != "" {
		base = src.URL
	}

	entities := make([]source.RankedEntity, len(src.Guilds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, guild := range src.Guilds {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return err
			}
			entities[i] = r.fetchGuild(gctx, base, key, src.Raid, guild)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return source.Snapshot{}, &FetchError{Op: "request", Err: err}
	}

	var errs []error
	for _, e := range entities {
		if e.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Key, e.Err))
		}
	}
	if len(entities) > 0 && len(errs) == len(entities) {
		var fe *FetchError
		if errors.As(errs[0], &fe) {
			return source.Snapshot{}, &FetchError{Op: fe.Op, Status: fe.Status, Err: errors.Join(errs...)}
		}
		return source.Snapshot{}, &FetchError{Op: "request", Err: errors.Join(errs...)}
	}
	return source.RankingSnapshot(entities), nil
}

func (r *RaiderIO) fetchGuild(ctx context.Context, base, key, raid string, g source.Guild) source.RankedEntity {
	ent := source.RankedEntity{
		Key:        g.Key(),
		Name:       g.Name,
		Region:     g.Region,
		Realm:      g.Realm,
		ProfileURL: guildProfileURL(g),
	}

	q := url.Values{}
	q.Set("region", g.Region)
	q.Set("realm", g.Realm)
	q.Set("name", g.Name)
	q.Set("fields", "raid_progression,raid_rankings")
	if key != "" {
		q.Set("access_key", key)
	}

	var resp rioGuild
	if err := r.client.getJSON(ctx, base+"?"+q.Encode(), nil, &resp); err != nil {
		ent.Err = err
		return ent
	}
	if resp.ProfileURL != "" {
		ent.ProfileURL = resp.ProfileURL
	}
	if p, ok := resp.RaidProgression[raid]; ok {
		ent.Record.Summary = p.Summary
	}
	if rk, ok := resp.RaidRankings[raid]; ok {
		ent.Record.Mythic = rk.Mythic.World
		ent.Record.Heroic = rk.Heroic.World
		ent.Record.Normal = rk.Normal.World
	}
	return ent
}

func guildProfileURL(g source.Guild) string {
	return fmt.Sprintf("https://raider.io/guilds/%s/%s/%s",
		url.PathEscape(g.Region), url.PathEscape(g.Realm), url.PathEscape(g.Name))
}
