// Package fetch walks the provider waterfall for one track: lossless
// sources first, identity-checked before any byte is downloaded, then
// the video fallback, with quality and acoustic enrichment joined in
// after the audio is already secured.
package fetch

import (
	"context"
	"errors"
	"sync"

	"yoink/internal/logger"
	"yoink/internal/metadata"
	"yoink/internal/quality"
	"yoink/internal/songlink"
	"yoink/internal/verify"
)

// Status values reported through OnStatus as the waterfall advances.
const (
	StatusTryingLossless = "trying_lossless"
	StatusTryingFallback = "trying_fallback"
	StatusSucceeded      = "succeeded"
	StatusExhausted      = "exhausted"
)

// AudioResult is the waterfall's output. Data, Source and Format are
// always populated on success; Quality and Verification are best-effort
// annotations.
type AudioResult struct {
	Data    []byte
	Source  string
	Format  string
	Bitrate int

	Quality      *quality.Info
	Verification *verify.Result
}

// LinkResolver maps a pasted source URL to per-platform links. The
// second return reports whether the resolver actually ran; a denied
// rate budget yields (zero, false, nil).
type LinkResolver interface {
	Resolve(ctx context.Context, sourceURL string) (songlink.Links, bool, error)
}

// Orchestrator runs the waterfall.
type Orchestrator struct {
	lossless []Source
	fallback FallbackSource
	links    LinkResolver
	acoustic *verify.Acoustic
	probe    *quality.Probe
	log      *logger.Logger

	// OnStatus, when set, receives state transitions for progress
	// reporting. Called synchronously; keep it cheap.
	OnStatus func(status, provider string)
}

func NewOrchestrator(lossless []Source, fallback FallbackSource, links LinkResolver, acoustic *verify.Acoustic, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		lossless: lossless,
		fallback: fallback,
		links:    links,
		acoustic: acoustic,
		probe:    quality.NewProbe(),
		log:      log,
	}
}

func (o *Orchestrator) status(status, provider string) {
	if o.OnStatus != nil {
		o.OnStatus(status, provider)
	}
}

// Fetch tries every source for the canonical track and returns the
// first audio that passes the identity gate. sourceURL is the link the
// user pasted, used for cross-platform resolution.
func (o *Orchestrator) Fetch(ctx context.Context, track metadata.Track, sourceURL string) (*AudioResult, error) {
	var attempts []*StageError
	record := func(e *StageError) {
		attempts = append(attempts, e)
		o.log.Debug("%v", e)
	}

	// Cross-platform resolution burns a strictly rate-limited budget,
	// so it runs at most once per fetch and only after an ISRC lookup
	// has already missed.
	var (
		links    songlink.Links
		resolved bool
	)
	resolveLinks := func() songlink.Links {
		if resolved {
			return links
		}
		resolved = true
		l, _, err := o.links.Resolve(ctx, sourceURL)
		if err != nil {
			o.log.Debug("link resolution failed: %v", err)
			return links
		}
		links = l
		return links
	}

	for _, src := range o.lossless {
		if !src.Available() {
			continue
		}
		o.status(StatusTryingLossless, src.Name())

		candidate, stageErr := o.locate(ctx, src, track, resolveLinks)
		if stageErr != nil {
			record(stageErr)
			continue
		}

		if id := verify.CheckIdentity(track, candidate.ISRC, candidate.DurationMS); !id.OK {
			record(&StageError{Provider: src.Name(), Stage: StageIdentity, Err: errors.New(id.Reason)})
			continue
		}

		dl, err := src.Fetch(ctx, candidate)
		if err != nil {
			record(&StageError{Provider: src.Name(), Stage: StageDownload, Err: err})
			continue
		}

		result := &AudioResult{
			Data:    dl.Data,
			Source:  src.Name(),
			Format:  dl.Format,
			Bitrate: dl.Bitrate,
		}
		o.enrich(ctx, result, track)
		o.status(StatusSucceeded, src.Name())
		return result, nil
	}

	result, stageErr := o.tryFallback(ctx, track)
	if stageErr != nil {
		record(stageErr)
		o.status(StatusExhausted, "")
		return nil, &ExhaustedError{Attempts: attempts}
	}

	o.enrich(ctx, result, track)
	o.status(StatusSucceeded, result.Source)
	return result, nil
}

// locate tries the identity strategies in order: ISRC index, resolved
// cross-platform link, fuzzy search. The first candidate wins; strategy
// errors only matter when every strategy comes up empty. resolveLinks
// is deferred until the ISRC strategy has missed.
func (o *Orchestrator) locate(ctx context.Context, src Source, track metadata.Track, resolveLinks func() songlink.Links) (*Candidate, *StageError) {
	var lastErr error

	if track.ISRC != "" {
		c, err := src.FindByISRC(ctx, track.ISRC)
		if err == nil && c != nil {
			return c, nil
		}
		lastErr = err
	}

	if link := linkFor(src.Name(), resolveLinks()); link != "" {
		c, err := src.FindByLink(ctx, link)
		if err == nil && c != nil {
			return c, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	c, err := src.Search(ctx, track)
	if err == nil && c != nil {
		return c, nil
	}
	if err != nil {
		lastErr = err
	}

	return nil, &StageError{Provider: src.Name(), Stage: StageLookup, Err: lastErr}
}

func linkFor(provider string, links songlink.Links) string {
	switch provider {
	case "tidal":
		return links.Tidal
	case "deezer":
		return links.Deezer
	}
	return ""
}

func (o *Orchestrator) tryFallback(ctx context.Context, track metadata.Track) (*AudioResult, *StageError) {
	if o.fallback == nil {
		return nil, &StageError{Provider: "fallback", Stage: StageLookup, Err: errNoFallback}
	}
	name := o.fallback.Name()
	o.status(StatusTryingFallback, name)

	candidates, err := o.fallback.Search(ctx, track)
	if err != nil {
		return nil, &StageError{Provider: name, Stage: StageLookup, Err: err}
	}
	if len(candidates) == 0 {
		return nil, &StageError{Provider: name, Stage: StageLookup, Err: errNoCandidates}
	}

	best := candidates[0]
	stream, err := o.fallback.ResolveStream(ctx, best.ID)
	if err != nil {
		return nil, &StageError{Provider: name, Stage: StageStream, Err: err}
	}

	data, err := o.fallback.Download(ctx, stream)
	if err != nil {
		return nil, &StageError{Provider: name, Stage: StageDownload, Err: err}
	}

	format := stream.Ext
	if format == "" {
		format = "webm"
	}
	return &AudioResult{
		Data:    data,
		Source:  name,
		Format:  format,
		Bitrate: stream.Bitrate,
	}, nil
}

// enrich runs the post-download annotations concurrently and waits for
// all of them. Failures leave the corresponding field nil or zero; they
// never touch the audio already in hand. Acoustic verification only
// applies to the fallback path, where no pre-fetch identity gate ran.
func (o *Orchestrator) enrich(ctx context.Context, result *AudioResult, track metadata.Track) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		info, err := o.probe.Analyze(ctx, result.Data, result.Format)
		if err != nil {
			o.log.Debug("quality probe failed: %v", err)
			return
		}
		result.Quality = info
	}()

	if result.Source == "youtube" && o.acoustic != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := o.acoustic.Verify(ctx, result.Data, result.Format, track)
			result.Verification = &r
		}()
	}

	wg.Wait()
}
