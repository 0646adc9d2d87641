package leaderboard

import (
	"time"

	"mmark-score/internal/cache"
)

// CountryCount is the number of submissions from one country.
type CountryCount struct {
	Count       int     `json:"count"`
	Country     string  `json:"country"`
	CountryCode *string `json:"country_code"`
}

// PlatformCounts are submission totals per client platform.
type PlatformCounts struct {
	Android      int `json:"android"`
	IOS          int `json:"ios"`
	AndroidMonth int `json:"android_month"`
	IOSMonth     int `json:"ios_month"`
}

// Page is the full scoreboard.
type Page struct {
	Platforms  PlatformCounts `json:"platforms"`
	Countries  []CountryCount `json:"countries"`
	MostRecent []Line         `json:"most_recent"`
	CPU        []Line         `json:"cpu"`
	Devices    []Line         `json:"devices"`
	Phones     []Line         `json:"phones"`
	Tablets    []Line         `json:"tablets"`
	Generated  time.Time      `json:"generated"`
}

// Cache holds the last built Page until it expires or new scores arrive.
type Cache struct {
	page *cache.Expiring[Page]
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{page: cache.NewExpiring[Page](ttl)}
}

func (c *Cache) Get() (Page, bool) { return c.page.Get() }

func (c *Cache) Put(p Page) { c.page.Set(p) }

func (c *Cache) Invalidate() { c.page.Invalidate() }
