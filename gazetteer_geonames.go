package toponym

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
)

// GeoNamesCitiesURL is the default GeoNames dump of places with a population
// of at least 1000.
const GeoNamesCitiesURL = "https://download.geonames.org/export/dump/cities1000.zip"

// geoNamesColumns is the column count of the GeoNames "geoname" table.
const geoNamesColumns = 19

// dedupePrecision is the geohash length (~150m cells) under which two entries
// with the same name are treated as the same place.
const dedupePrecision = 7

// LoadGeoNames reads a GeoNames dump (a cities*.zip archive, a .txt file or a
// gzipped .txt.gz file) into a new MemoryGazetteer. Every location is indexed
// under its primary name and each comma-separated alternate name.
//
// Rows with unparseable coordinates are skipped rather than being placed at
// (0,0).
func LoadGeoNames(path string, opts ...GazetteerOption) (*MemoryGazetteer, error) {
	g := NewMemoryGazetteer(opts...)
	l := &geoNamesLoader{g: g, seen: make(map[string]bool)}

	var err error
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".zip"):
		err = l.loadZip(path)
	case strings.HasSuffix(lower, ".gz"):
		err = l.loadFile(path, true)
	default:
		err = l.loadFile(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("loading geonames %s: %w", path, err)
	}
	logger().Info("loaded geonames gazetteer", "path", path, "locations", g.Len(), "skipped", l.skipped)
	return g, nil
}

type geoNamesLoader struct {
	g       *MemoryGazetteer
	seen    map[string]bool // name + geohash dedupe keys
	skipped int
}

func (l *geoNamesLoader) loadZip(path string) error {
	rz, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening zip file: %w", err)
	}
	defer rz.Close()

	for _, f := range rz.File {
		if err := l.loadZipEntry(f); err != nil {
			return err
		}
	}
	return nil
}

// loadZipEntry is split out so the entry is closed before the next one opens.
func (l *geoNamesLoader) loadZipEntry(f *zip.File) error {
	fi, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening file in zip: %w", err)
	}
	defer fi.Close()
	return l.load(fi)
}

func (l *geoNamesLoader) loadFile(path string, gzipped bool) error {
	fi, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer fi.Close()

	var r io.Reader = fi
	if gzipped {
		fz, err := gzip.NewReader(fi)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer fz.Close()
		r = fz
	}
	return l.load(r)
}

func (l *geoNamesLoader) load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// Alternate-name columns of large cities run well past the default 64KB.
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.SplitN(line, "\t", geoNamesColumns)
		if len(fields) != geoNamesColumns {
			l.skipped++
			continue
		}
		if err := l.addRow(fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading rows: %w", err)
	}
	return nil
}

func (l *geoNamesLoader) addRow(fields []string) error {
	id, errID := strconv.Atoi(fields[0])
	lat, errLat := strconv.ParseFloat(fields[4], 64)
	lng, errLng := strconv.ParseFloat(fields[5], 64)
	if errID != nil || errLat != nil || errLng != nil {
		l.skipped++
		return nil
	}
	pop, _ := strconv.Atoi(fields[14]) // empty population is unknown
	if pop < l.g.cfg.minPopulation {
		l.skipped++
		return nil
	}
	name := strings.TrimSpace(fields[1])
	if name == "" {
		l.skipped++
		return nil
	}

	key := normalizeName(name) + "|" + geohash.EncodeWithPrecision(lat, lng, dedupePrecision)
	if l.seen[key] {
		l.skipped++
		return nil
	}
	l.seen[key] = true

	loc := Location{
		ID:         id,
		Name:       name,
		Region:     NewPointRegion(lat, lng),
		Type:       geoNamesType(fields[6], fields[7]),
		Population: pop,
	}
	if err := l.g.Add(name, loc); err != nil {
		return err
	}
	if ascii := strings.TrimSpace(fields[2]); ascii != "" && ascii != name {
		if err := l.g.Add(ascii, loc); err != nil {
			return err
		}
	}
	for _, raw := range strings.Split(fields[3], ",") {
		alt := strings.TrimSpace(raw)
		if alt == "" {
			continue
		}
		if err := l.g.Add(alt, loc); err != nil {
			return err
		}
	}
	return nil
}

// geoNamesType maps a GeoNames feature class/code to a LocationType.
func geoNamesType(class, code string) LocationType {
	switch class {
	case "P":
		return TypeCity
	case "A":
		if strings.HasPrefix(code, "PCL") {
			return TypeCountry
		}
		return TypeState
	case "H":
		return TypeWater
	case "T":
		return TypeMountain
	case "S":
		return TypeSite
	}
	return TypeUnknown
}

var httpClient = &http.Client{
	Timeout: 5 * time.Minute,
}

// DownloadGeoNames fetches a GeoNames dump to path. A partially written file
// is removed on failure.
func DownloadGeoNames(url, path string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}

	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(path)
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	// Close explicitly so flush errors are reported.
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file %s: %w", path, err)
	}
	success = true
	return nil
}
