package leaderboard

import (
	"strings"
	"time"
)

// MaxRows is the number of lines shown on each board.
const MaxRows = 10

// Category selects which devices a board covers.
type Category string

const (
	All    Category = "all"
	Phones Category = "phone"
	// Tablets covers both tablets and mini tablets.
	Tablets Category = "tablet"
)

// Metric is the score column a board ranks by.
type Metric string

const (
	Total   Metric = "total"
	Fractal Metric = "fractal" // the CPU bound stage
)

// Board describes one high score list. Each device contributes its best
// run by total score; CountryCode narrows the list to one country.
type Board struct {
	Category    Category
	Metric      Metric
	CountryCode string
}

// Entry is one score row joined with its device.
type Entry struct {
	Manufacturer string
	Model        string
	ProductName  *string
	Score        int
	UUID         string
	UserName     *string
	Country      *string
	CountryCode  *string
	Added        time.Time
}

// Line is a rendered leaderboard row.
type Line struct {
	UUID        string  `json:"uuid"`
	Name        *string `json:"name"`
	Country     *string `json:"country"`
	CountryCode *string `json:"country_code"`
	Device      string  `json:"device"`
	Score       int     `json:"score"`
	BarLength   float64 `json:"bar_length"`
}

type deviceKey struct {
	manufacturer, model string
	product             string
	hasProduct          bool
}

func keyOf(e Entry) deviceKey {
	k := deviceKey{manufacturer: e.Manufacturer, model: e.Model}
	if e.ProductName != nil {
		k.product, k.hasProduct = *e.ProductName, true
	}
	return k
}

// DistinctDevices keeps the first entry for every manufacturer/model/product
// combination, in order, up to limit entries.
func DistinctDevices(entries []Entry, limit int) []Entry {
	seen := make(map[deviceKey]struct{}, len(entries))
	out := make([]Entry, 0, min(len(entries), limit))
	for _, e := range entries {
		if len(out) >= limit {
			break
		}
		k := keyOf(e)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Build renders entries as lines whose bar length is scaled so the best
// score spans graphWidth.
func Build(entries []Entry, graphWidth int) []Line {
	highest := 0
	for i, e := range entries {
		if i == 0 || e.Score > highest {
			highest = e.Score
		}
	}

	out := make([]Line, 0, len(entries))
	for _, e := range entries {
		var bar float64
		if highest > 0 {
			bar = float64(graphWidth) * float64(e.Score) / float64(highest)
		}
		out = append(out, Line{
			UUID:        e.UUID,
			Name:        e.UserName,
			Country:     e.Country,
			CountryCode: e.CountryCode,
			Device:      deviceName(e),
			Score:       e.Score,
			BarLength:   bar,
		})
	}
	return out
}

func deviceName(e Entry) string {
	product := ""
	if e.ProductName != nil {
		product = *e.ProductName
	}
	return strings.TrimSpace(e.Manufacturer + " " + e.Model + " " + product)
}
