package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"mmark-score/internal/config"
	"mmark-score/internal/device"
	"mmark-score/internal/geo"
	"mmark-score/internal/leaderboard"
	"mmark-score/internal/submission"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("client_submit_id resubmission")
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

// NewScore is a score ready to be inserted.
type NewScore struct {
	UUID     string
	SubmitID string
	DeviceID int64
	UserName *string
	Geo      geo.Location
	Results  submission.Score
}

// Score is a stored score joined with its device.
type Score struct {
	ID          int64            `json:"-"`
	UUID        string           `json:"uuid"`
	SubmitID    string           `json:"-"`
	Added       time.Time        `json:"added"`
	UserName    *string          `json:"user_name"`
	Latitude    *float64         `json:"geo_latitude"`
	Longitude   *float64         `json:"geo_longitude"`
	City        *string          `json:"geo_city"`
	Country     *string          `json:"geo_country"`
	CountryCode *string          `json:"geo_country_code"`
	Results     submission.Score `json:"score"`
	Device      device.Device    `json:"device"`
}

type NewsItem struct {
	ID    int64     `json:"id"`
	Added time.Time `json:"added"`
	Text  string    `json:"text"`
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}

const deviceColumns = `dt.id, dt.added, dt.disabled, dt.platform, dt.platform_info,
	COALESCE(dt.manufacturer, ''), COALESCE(dt.model, ''), dt.product_name,
	COALESCE(dt.os_version, ''), dt.device_type, dt.total_ram, dt.num_cpu_cores,
	dt.cpu_type, dt.cpu_max_frequency, dt.screen_width, dt.screen_height,
	dt.gl_vendor, dt.gl_renderer, dt.gl_version, dt.glsl_version, dt.missing_features`

func deviceDest(d *device.Device) []any {
	return []any{
		&d.ID, &d.Added, &d.Disabled, &d.Platform, &d.PlatformInfo,
		&d.Manufacturer, &d.Model, &d.ProductName,
		&d.OSVersion, &d.DeviceType, &d.TotalRAM, &d.NumCPUCores,
		&d.CPUType, &d.CPUMaxFrequency, &d.ScreenWidth, &d.ScreenHeight,
		&d.GLVendor, &d.GLRenderer, &d.GLVersion, &d.GLSLVersion, &d.MissingFeatures,
	}
}

// FindDeviceCandidates returns stored devices sharing r's manufacturer,
// platform and model, in insertion order. The full fingerprint comparison
// is left to device.FindOrMarkNew.
func (s *Store) FindDeviceCandidates(ctx context.Context, r device.Report) ([]device.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM device_types dt
		WHERE COALESCE(dt.manufacturer, '') = $1
		  AND dt.platform = $2
		  AND COALESCE(dt.model, '') = $3
		ORDER BY dt.id
	`, r.Manufacturer, r.Platform, r.Model)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []device.Device
	for rows.Next() {
		var d device.Device
		if err := rows.Scan(deviceDest(&d)...); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return out, nil
}

func (s *Store) InsertDevice(ctx context.Context, r device.Report) (device.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d := device.Device{Report: r}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO device_types (
			platform, platform_info, manufacturer, model, product_name,
			os_version, device_type, total_ram, num_cpu_cores, cpu_type,
			cpu_max_frequency, screen_width, screen_height, gl_vendor,
			gl_renderer, gl_version, glsl_version, missing_features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, added, disabled
	`,
		r.Platform, r.PlatformInfo, r.Manufacturer, r.Model, r.ProductName,
		r.OSVersion, string(r.DeviceType), r.TotalRAM, r.NumCPUCores, r.CPUType,
		r.CPUMaxFrequency, r.ScreenWidth, r.ScreenHeight, r.GLVendor,
		r.GLRenderer, r.GLVersion, r.GLSLVersion, r.MissingFeatures,
	).Scan(&d.ID, &d.Added, &d.Disabled)
	if err != nil {
		return device.Device{}, fmt.Errorf("insert device: %w", err)
	}
	return d, nil
}

// InsertScore stores a new score. A repeated client submit id yields
// ErrAlreadySubmitted.
func (s *Store) InsertScore(ctx context.Context, n NewScore) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res := n.Results
	var added time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scores (
			uuid, client_submit_id, version, device_type_id, user_name,
			geo_latitude, geo_longitude, geo_city, geo_country, geo_country_code,
			total_score, loadtime_score, fractal_score, fractal_loadtime,
			fractal_num_images, fillrate_score, fillrate_loadtime, chess_score,
			chess_loadtime, chess_fps, mountains_score, mountains_loadtime,
			mountains_fps, unlighted_fillrate, vertex_lighted_fillrate,
			pixel_lighted_fillrate, mapped_lighted_fillrate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		RETURNING added
	`,
		n.UUID, n.SubmitID, res.Version, n.DeviceID, n.UserName,
		n.Geo.Latitude, n.Geo.Longitude, n.Geo.City, n.Geo.Country, n.Geo.CountryCode,
		res.TotalScore, res.LoadtimeScore, res.FractalScore, numeric(res.FractalLoadtime),
		res.FractalNumImages, res.FillrateScore, numeric(res.FillrateLoadtime), res.ChessScore,
		numeric(res.ChessLoadtime), numeric(res.ChessFPS), res.MountainsScore, numeric(res.MountainsLoadtime),
		numeric(res.MountainsFPS), numeric(res.UnlightedFillrate), numeric(res.VertexLightedFillrate),
		numeric(res.PixelLightedFillrate), numeric(res.MappedLightedFillrate),
	).Scan(&added)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return time.Time{}, fmt.Errorf("%w: %s", ErrAlreadySubmitted, pgErr.ConstraintName)
		}
		return time.Time{}, fmt.Errorf("insert score: %w", err)
	}
	return added, nil
}

func (s *Store) GetScore(ctx context.Context, uuid string) (Score, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		sc Score
		r  = &sc.Results
		nm [10]pgtype.Numeric
	)
	dest := []any{
		&sc.ID, &sc.UUID, &sc.SubmitID, &sc.Added, &r.Version, &sc.UserName,
		&sc.Latitude, &sc.Longitude, &sc.City, &sc.Country, &sc.CountryCode,
		&r.TotalScore, &r.LoadtimeScore, &r.FractalScore, &nm[0],
		&r.FractalNumImages, &r.FillrateScore, &nm[1], &r.ChessScore,
		&nm[2], &nm[3], &r.MountainsScore, &nm[4],
		&nm[5], &nm[6], &nm[7], &nm[8], &nm[9],
	}
	dest = append(dest, deviceDest(&sc.Device)...)

	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.uuid, s.client_submit_id, s.added, s.version, s.user_name,
		       s.geo_latitude, s.geo_longitude, s.geo_city, s.geo_country, s.geo_country_code,
		       s.total_score, s.loadtime_score, s.fractal_score, s.fractal_loadtime,
		       s.fractal_num_images, s.fillrate_score, s.fillrate_loadtime, s.chess_score,
		       s.chess_loadtime, s.chess_fps, s.mountains_score, s.mountains_loadtime,
		       s.mountains_fps, s.unlighted_fillrate, s.vertex_lighted_fillrate,
		       s.pixel_lighted_fillrate, s.mapped_lighted_fillrate,
		       `+deviceColumns+`
		FROM scores s
		JOIN device_types dt ON dt.id = s.device_type_id
		WHERE s.uuid = $1
	`, uuid).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Score{}, ErrNotFound
	}
	if err != nil {
		return Score{}, fmt.Errorf("get score: %w", err)
	}

	targets := []*decimal.Decimal{
		&r.FractalLoadtime, &r.FillrateLoadtime, &r.ChessLoadtime, &r.ChessFPS,
		&r.MountainsLoadtime, &r.MountainsFPS, &r.UnlightedFillrate,
		&r.VertexLightedFillrate, &r.PixelLightedFillrate, &r.MappedLightedFillrate,
	}
	for i, t := range targets {
		*t = fromNumeric(nm[i])
	}
	return sc, nil
}

func (s *Store) SetUserName(ctx context.Context, uuid, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE scores SET user_name = $2 WHERE uuid = $1`, uuid, name)
	if err != nil {
		return fmt.Errorf("set user name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const entryColumns = `COALESCE(dt.manufacturer, ''), COALESCE(dt.model, ''), dt.product_name,
	%s AS score, s.uuid, s.user_name, s.geo_country, s.geo_country_code, s.added`

func scanEntries(rows pgx.Rows) ([]leaderboard.Entry, error) {
	defer rows.Close()
	var out []leaderboard.Entry
	for rows.Next() {
		var e leaderboard.Entry
		if err := rows.Scan(&e.Manufacturer, &e.Model, &e.ProductName, &e.Score,
			&e.UUID, &e.UserName, &e.Country, &e.CountryCode, &e.Added); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// MostRecent returns the latest scores of enabled devices.
func (s *Store) MostRecent(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+fmt.Sprintf(entryColumns, "s.total_score")+`
		FROM scores s
		JOIN device_types dt ON dt.id = s.device_type_id
		WHERE NOT dt.disabled
		ORDER BY s.added DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query most recent: %w", err)
	}
	return scanEntries(rows)
}

// HighScores returns, best first, each enabled device's top run by total
// score, ranked by the board's metric.
func (s *Store) HighScores(ctx context.Context, b leaderboard.Board) ([]leaderboard.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query, args, err := highScoreQuery(b)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query high scores: %w", err)
	}
	return scanEntries(rows)
}

func highScoreQuery(b leaderboard.Board) (string, []any, error) {
	var column string
	switch b.Metric {
	case leaderboard.Total, "":
		column = "s.total_score"
	case leaderboard.Fractal:
		column = "s.fractal_score"
	default:
		return "", nil, fmt.Errorf("unknown metric %q", b.Metric)
	}

	var category string
	switch b.Category {
	case leaderboard.All, "":
	case leaderboard.Phones:
		category = " AND dt.device_type = 'mobilephone'"
	case leaderboard.Tablets:
		category = " AND dt.device_type IN ('tablet', 'minitablet')"
	default:
		return "", nil, fmt.Errorf("unknown category %q", b.Category)
	}

	var (
		country, innerCountry string
		args                  []any
	)
	if b.CountryCode != "" {
		args = append(args, b.CountryCode)
		country = " AND s.geo_country_code = $1"
		innerCountry = " AND s2.geo_country_code = $1"
	}

	query := `
		SELECT ` + fmt.Sprintf(entryColumns, column) + `
		FROM scores s
		JOIN device_types dt ON dt.id = s.device_type_id
		WHERE NOT dt.disabled` + category + country + `
		  AND s.total_score = (
			SELECT MAX(s2.total_score) FROM scores s2
			WHERE s2.device_type_id = s.device_type_id` + innerCountry + `)
		ORDER BY score DESC, s.added ASC`
	return query, args, nil
}

// GeoDistribution counts located submissions per country.
func (s *Store) GeoDistribution(ctx context.Context) ([]leaderboard.CountryCount, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT COUNT(id), geo_country, geo_country_code
		FROM scores
		WHERE geo_country IS NOT NULL
		GROUP BY geo_country, geo_country_code
		ORDER BY COUNT(id) DESC, geo_country
	`)
	if err != nil {
		return nil, fmt.Errorf("query geo distribution: %w", err)
	}
	defer rows.Close()

	var out []leaderboard.CountryCount
	for rows.Next() {
		var c leaderboard.CountryCount
		if err := rows.Scan(&c.Count, &c.Country, &c.CountryCode); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate countries: %w", err)
	}
	return out, nil
}

// CountPlatformScores counts scores from a client platform, optionally only
// those added at or after since.
func (s *Store) CountPlatformScores(ctx context.Context, platform string, since *time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(s.id)
		FROM scores s
		JOIN device_types dt ON dt.id = s.device_type_id
		WHERE dt.platform = $1 AND ($2::timestamptz IS NULL OR s.added >= $2)
	`, platform, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s scores: %w", platform, err)
	}
	return n, nil
}

func (s *Store) LatestNews(ctx context.Context, limit int) ([]NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, added, text FROM news_items ORDER BY added DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[NewsItem])
	if err != nil {
		return nil, fmt.Errorf("collect news: %w", err)
	}
	return items, nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
