package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver maps a client IP to a country code. Implementations must be
// safe for concurrent use; the tracking path calls this per click.
type Resolver interface {
	Country(ip string) string
}

// MaxMindResolver resolves countries from a local MaxMind GeoLite2
// database file.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// NewMaxMindResolver opens the GeoLite2 database at dbPath.
func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

// Country returns the ISO country code for ip, or "" when the IP is
// invalid or unknown. Geo is best-effort; lookup failures never fail
// the click.
func (m *MaxMindResolver) Country(ip string) string {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ""
	}
	record, err := m.reader.Country(parsedIP)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close closes the GeoIP database.
func (m *MaxMindResolver) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}

// NopResolver is used when no GeoIP database is configured.
type NopResolver struct{}

func (NopResolver) Country(string) string { return "" }
