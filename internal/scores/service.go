package scores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mmark-score/internal/device"
	"mmark-score/internal/geo"
	"mmark-score/internal/leaderboard"
	"mmark-score/internal/observability"
	"mmark-score/internal/storage"
	"mmark-score/internal/submission"
)

var (
	ErrInvalidNonce = errors.New("invalid nonce")
	ErrNameTaken    = errors.New("score already named")
)

const newsItems = 5

// Store is the persistence the service needs.
type Store interface {
	FindDeviceCandidates(ctx context.Context, r device.Report) ([]device.Device, error)
	InsertDevice(ctx context.Context, r device.Report) (device.Device, error)
	InsertScore(ctx context.Context, n storage.NewScore) (time.Time, error)
	GetScore(ctx context.Context, uuid string) (storage.Score, error)
	SetUserName(ctx context.Context, uuid, name string) error
	MostRecent(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	HighScores(ctx context.Context, b leaderboard.Board) ([]leaderboard.Entry, error)
	GeoDistribution(ctx context.Context) ([]leaderboard.CountryCount, error)
	CountPlatformScores(ctx context.Context, platform string, since *time.Time) (int, error)
	LatestNews(ctx context.Context, limit int) ([]storage.NewsItem, error)
}

type Service struct {
	store      Store
	geo        geo.Locator
	boards     *leaderboard.Cache
	graphWidth int

	now   func() time.Time
	newID func() string
}

func New(store Store, locator geo.Locator, boards *leaderboard.Cache, graphWidth int) *Service {
	if locator == nil {
		locator = geo.Nop{}
	}
	return &Service{
		store:      store,
		geo:        locator,
		boards:     boards,
		graphWidth: graphWidth,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Receipt is returned to the client after a successful upload. Nonce lets
// the client name the score later.
type Receipt struct {
	ScoreUUID string `json:"score_uuid"`
	Nonce     string `json:"nonce"`
}

// Submit stores one upload: the device is matched against known devices
// (or created) and the score is attached to it.
func (s *Service) Submit(ctx context.Context, body []byte, clientIP string) (Receipt, error) {
	sub, err := submission.Decode(body)
	if err != nil {
		observability.Submissions.WithLabelValues("invalid").Inc()
		return Receipt{}, err
	}

	report, policy := device.Prepare(sub.Version(), sub.Device())

	deviceID, err := s.resolveDevice(ctx, report, policy)
	if err != nil {
		observability.Submissions.WithLabelValues("error").Inc()
		return Receipt{}, err
	}

	loc := s.geo.Locate(clientIP)
	id := s.newID()
	_, err = s.store.InsertScore(ctx, storage.NewScore{
		UUID:     id,
		SubmitID: sub.SubmitID,
		DeviceID: deviceID,
		UserName: sub.UserName,
		Geo:      loc,
		Results:  sub.Score,
	})
	if errors.Is(err, storage.ErrAlreadySubmitted) {
		observability.Submissions.WithLabelValues("resubmission").Inc()
		return Receipt{}, err
	}
	if err != nil {
		observability.Submissions.WithLabelValues("error").Inc()
		return Receipt{}, err
	}

	s.InvalidateBoards()
	observability.Submissions.WithLabelValues("stored").Inc()
	log.Debug().
		Str("uuid", id).
		Str("version", sub.Version()).
		Int64("device_id", deviceID).
		Int("total_score", sub.Score.TotalScore).
		Msg("new score inserted")

	return Receipt{ScoreUUID: id, Nonce: sub.SubmitID}, nil
}

func (s *Service) resolveDevice(ctx context.Context, r device.Report, p device.MatchPolicy) (int64, error) {
	candidates, err := s.store.FindDeviceCandidates(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("find devices: %w", err)
	}

	m := device.FindOrMarkNew(r, p, candidates)
	switch {
	case m.New != nil:
		d, err := s.store.InsertDevice(ctx, *m.New)
		if err != nil {
			return 0, fmt.Errorf("create device: %w", err)
		}
		observability.DeviceMatches.WithLabelValues("new").Inc()
		log.Debug().Int64("device_id", d.ID).Str("device", d.DisplayName()).Msg("created new device")
		return d.ID, nil
	case m.Duplicate():
		observability.DeviceMatches.WithLabelValues("duplicate").Inc()
	default:
		observability.DeviceMatches.WithLabelValues("existing").Inc()
	}
	log.Debug().Int64("device_id", m.Existing.ID).Str("device", m.Existing.DisplayName()).Msg("found matching device")
	return m.Existing.ID, nil
}

// InvalidateBoards drops the cached scoreboard.
func (s *Service) InvalidateBoards() {
	s.boards.Invalidate()
	observability.BoardCache.WithLabelValues("invalidate").Inc()
}

// Scoreboard returns the full scoreboard, served from cache while fresh.
func (s *Service) Scoreboard(ctx context.Context) (leaderboard.Page, error) {
	if p, ok := s.boards.Get(); ok {
		observability.BoardCache.WithLabelValues("hit").Inc()
		return p, nil
	}
	observability.BoardCache.WithLabelValues("miss").Inc()

	log.Debug().Msg("generating the complete scoreboard")
	p, err := s.buildPage(ctx)
	if err != nil {
		return leaderboard.Page{}, err
	}
	s.boards.Put(p)
	return p, nil
}

func (s *Service) buildPage(ctx context.Context) (leaderboard.Page, error) {
	now := s.now()
	monthAgo := now.AddDate(0, -1, 0)
	p := leaderboard.Page{Generated: now}

	counts := []struct {
		dst      *int
		platform string
		since    *time.Time
	}{
		{&p.Platforms.Android, "android", nil},
		{&p.Platforms.IOS, "ios", nil},
		{&p.Platforms.AndroidMonth, "android", &monthAgo},
		{&p.Platforms.IOSMonth, "ios", &monthAgo},
	}
	for _, c := range counts {
		n, err := s.store.CountPlatformScores(ctx, c.platform, c.since)
		if err != nil {
			return leaderboard.Page{}, err
		}
		*c.dst = n
	}

	var err error
	if p.Countries, err = s.store.GeoDistribution(ctx); err != nil {
		return leaderboard.Page{}, err
	}
	if p.MostRecent, err = s.mostRecent(ctx); err != nil {
		return leaderboard.Page{}, err
	}

	boards := []struct {
		dst   *[]leaderboard.Line
		board leaderboard.Board
	}{
		{&p.CPU, leaderboard.Board{Category: leaderboard.All, Metric: leaderboard.Fractal}},
		{&p.Devices, leaderboard.Board{Category: leaderboard.All, Metric: leaderboard.Total}},
		{&p.Phones, leaderboard.Board{Category: leaderboard.Phones, Metric: leaderboard.Total}},
		{&p.Tablets, leaderboard.Board{Category: leaderboard.Tablets, Metric: leaderboard.Total}},
	}
	for _, b := range boards {
		lines, err := s.highScores(ctx, b.board)
		if err != nil {
			return leaderboard.Page{}, err
		}
		*b.dst = lines
	}
	return p, nil
}

func (s *Service) mostRecent(ctx context.Context) ([]leaderboard.Line, error) {
	rows, err := s.store.MostRecent(ctx, leaderboard.MaxRows)
	if err != nil {
		return nil, err
	}
	return leaderboard.Build(rows, s.graphWidth), nil
}

func (s *Service) highScores(ctx context.Context, b leaderboard.Board) ([]leaderboard.Line, error) {
	rows, err := s.store.HighScores(ctx, b)
	if err != nil {
		return nil, err
	}
	return leaderboard.Build(leaderboard.DistinctDevices(rows, leaderboard.MaxRows), s.graphWidth), nil
}

// CountryBoard is the device high score list for one ISO country code.
func (s *Service) CountryBoard(ctx context.Context, code string) ([]leaderboard.Line, error) {
	return s.highScores(ctx, leaderboard.Board{
		Category:    leaderboard.All,
		Metric:      leaderboard.Total,
		CountryCode: strings.ToUpper(strings.TrimSpace(code)),
	})
}

// Detail is a single score page.
type Detail struct {
	Score           storage.Score      `json:"score"`
	Nonce           *string            `json:"nonce,omitempty"`
	MissingFeatures *string            `json:"missing_features"`
	GLFinishErr     bool               `json:"gl_finish_err"`
	MostRecent      []leaderboard.Line `json:"most_recent"`
}

// ScoreDetail loads one score. A supplied nonce must equal the score's
// submit id; it is echoed back only while the score is still unnamed.
func (s *Service) ScoreDetail(ctx context.Context, id string, nonce *string) (Detail, error) {
	sc, err := s.store.GetScore(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	if nonce != nil {
		if *nonce != sc.SubmitID {
			return Detail{}, ErrInvalidNonce
		}
		if named(sc) {
			nonce = nil
		}
	}

	d := Detail{Score: sc, Nonce: nonce}
	if mf := sc.Device.MissingFeatures; mf != nil && *mf != "" {
		d.MissingFeatures = mf
		d.GLFinishErr = strings.Contains(*mf, "glFinish")
	}
	if d.MostRecent, err = s.mostRecent(ctx); err != nil {
		return Detail{}, err
	}
	return d, nil
}

// ClaimScore sets the user name of an unnamed score. The nonce handed out
// on upload is required.
func (s *Service) ClaimScore(ctx context.Context, id, nonce, name string) error {
	sc, err := s.store.GetScore(ctx, id)
	if err != nil {
		return err
	}
	if nonce == "" || nonce != sc.SubmitID {
		return ErrInvalidNonce
	}
	if named(sc) {
		return ErrNameTaken
	}

	log.Debug().Str("uuid", id).Str("name", name).Msg("setting name")
	if err := s.store.SetUserName(ctx, id, name); err != nil {
		return err
	}
	s.InvalidateBoards()
	return nil
}

func named(sc storage.Score) bool { return sc.UserName != nil && *sc.UserName != "" }

func (s *Service) News(ctx context.Context) ([]storage.NewsItem, error) {
	return s.store.LatestNews(ctx, newsItems)
}
