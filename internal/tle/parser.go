package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Parse decodes and validates one element set. Both lines must be 69
// columns wide, carry the right line numbers, pass the mod-10 checksum, share
// the catalog number and describe a consistent Keplerian orbit. Every
// failure wraps ErrInvalidElementSet.
func Parse(name, line1, line2 string) (*ElementSet, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	es := &ElementSet{
		Name:  strings.TrimSpace(name),
		Line1: line1,
		Line2: line2,
	}

	if err := checkLine(line1, '1'); err != nil {
		return nil, fmt.Errorf("%w: line 1: %v", ErrInvalidElementSet, err)
	}
	if err := checkLine(line2, '2'); err != nil {
		return nil, fmt.Errorf("%w: line 2: %v", ErrInvalidElementSet, err)
	}
	if err := es.parseLine1(line1); err != nil {
		return nil, fmt.Errorf("%w: line 1: %v", ErrInvalidElementSet, err)
	}
	if err := es.parseLine2(line2); err != nil {
		return nil, fmt.Errorf("%w: line 2: %v", ErrInvalidElementSet, err)
	}
	if err := es.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElementSet, err)
	}
	return es, nil
}

// ReadAll reads 2- or 3-line element sets from r. Malformed entries are
// skipped with a warning log.
func ReadAll(r io.Reader, logger *slog.Logger) ([]*ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var sets []*ElementSet
	for i := 0; i+1 < len(lines); {
		name := ""
		if !strings.HasPrefix(lines[i], "1 ") {
			name = lines[i]
			i++
		}
		if i+1 >= len(lines) {
			logger.Warn("skipping truncated TLE entry", "name", name)
			break
		}
		line1, line2 := lines[i], lines[i+1]
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			if strings.HasPrefix(line1, "1 ") {
				i++
			}
			continue
		}

		es, err := Parse(name, line1, line2)
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "name", name, "error", err)
		} else {
			sets = append(sets, es)
		}
		i += 2
	}

	return sets, nil
}

func checkLine(line string, number byte) error {
	if len(line) != LineLength {
		return fmt.Errorf("length %d, expected %d", len(line), LineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("must start with '%c ', got %q", number, line[:2])
	}
	want := int(line[68] - '0')
	if want < 0 || want > 9 {
		return fmt.Errorf("checksum column is %q, not a digit", line[68])
	}
	if got := checksum(line); got != want {
		return fmt.Errorf("checksum mismatch: line says %d, computed %d", want, got)
	}
	return nil
}

// checksum sums the digits of the first 68 columns, counting '-' as 1,
// modulo 10.
func checksum(line string) int {
	sum := 0
	for i := 0; i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func (es *ElementSet) parseLine1(line string) error {
	var err error
	if es.CatalogNumber, err = atoi(line[2:7]); err != nil {
		return fmt.Errorf("catalog number: %w", err)
	}
	es.Classification = line[7]
	es.IntlDesignator = strings.TrimSpace(line[9:17])

	if es.Epoch, err = parseEpoch(strings.TrimSpace(line[18:32])); err != nil {
		return err
	}
	if es.MeanMotionDot, err = strconv.ParseFloat(strings.TrimSpace(line[33:43]), 64); err != nil {
		return fmt.Errorf("mean motion derivative %q: %w", line[33:43], err)
	}
	if es.MeanMotionDDot, err = parseExponent(line[44:52]); err != nil {
		return fmt.Errorf("mean motion second derivative: %w", err)
	}
	if es.BStar, err = parseExponent(line[53:61]); err != nil {
		return fmt.Errorf("drag term: %w", err)
	}
	if es.ElementNumber, err = atoi(line[64:68]); err != nil {
		return fmt.Errorf("element number: %w", err)
	}
	return nil
}

func (es *ElementSet) parseLine2(line string) error {
	catalog, err := atoi(line[2:7])
	if err != nil {
		return fmt.Errorf("catalog number: %w", err)
	}
	if catalog != es.CatalogNumber {
		return fmt.Errorf("catalog numbers do not match (%d vs %d)", es.CatalogNumber, catalog)
	}

	fields := []struct {
		name string
		col  string
		dst  *float64
	}{
		{"inclination", line[8:16], &es.InclinationDeg},
		{"right ascension", line[17:25], &es.RAANDeg},
		{"argument of perigee", line[34:42], &es.ArgPerigeeDeg},
		{"mean anomaly", line[43:51], &es.MeanAnomalyDeg},
		{"mean motion", line[52:63], &es.MeanMotion},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f.col), 64)
		if err != nil {
			return fmt.Errorf("%s %q: %w", f.name, f.col, err)
		}
		*f.dst = v
	}

	// Eccentricity has an assumed leading decimal point.
	ecc := strings.TrimSpace(line[26:33])
	if es.Eccentricity, err = strconv.ParseFloat("0."+ecc, 64); err != nil || strings.ContainsAny(ecc, "+-. ") {
		return fmt.Errorf("eccentricity %q: invalid", line[26:33])
	}

	if es.RevolutionNumber, err = atoi(line[63:68]); err != nil {
		return fmt.Errorf("revolution number: %w", err)
	}
	return nil
}

func (es *ElementSet) validate() error {
	switch {
	case es.MeanMotion <= 0:
		return fmt.Errorf("mean motion %.8f must be positive", es.MeanMotion)
	case es.Eccentricity < 0 || es.Eccentricity >= 1:
		return fmt.Errorf("eccentricity %.7f outside [0, 1)", es.Eccentricity)
	case es.InclinationDeg < 0 || es.InclinationDeg > 180:
		return fmt.Errorf("inclination %.4f outside [0, 180]", es.InclinationDeg)
	}
	for name, v := range map[string]float64{
		"right ascension":     es.RAANDeg,
		"argument of perigee": es.ArgPerigeeDeg,
		"mean anomaly":        es.MeanAnomalyDeg,
	} {
		if v < 0 || v > 360 {
			return fmt.Errorf("%s %.4f outside [0, 360]", name, v)
		}
	}
	for _, v := range []float64{es.MeanMotionDot, es.MeanMotionDDot, es.BStar} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite derivative or drag term")
		}
	}
	if es.PerigeeAltitudeKm() < -earthRadiusKm {
		return fmt.Errorf("perigee inside the Earth's center")
	}
	return nil
}

// parseEpoch converts a TLE epoch in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %.8f outside [1, 367)", dayOfYear)
	}

	// Day 1 is Jan 1 00:00.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(math.Round((dayOfYear - 1) * float64(24*time.Hour)))), nil
}

// parseExponent decodes the packed " SMMMMM±E" notation with an assumed
// leading decimal point, e.g. " 17130-3" → 0.17130e-3.
func parseExponent(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, nil
	}
	if len(field) < 3 {
		return 0, fmt.Errorf("field %q too short", field)
	}
	mantissa, exponent := field[:len(field)-2], field[len(field)-2:]

	m, err := strconv.ParseFloat(strings.TrimSpace(mantissa), 64)
	if err != nil {
		return 0, fmt.Errorf("mantissa %q: %w", mantissa, err)
	}
	e, err := strconv.Atoi(exponent)
	if err != nil {
		return 0, fmt.Errorf("exponent %q: %w", exponent, err)
	}
	digits := len(strings.TrimLeft(strings.TrimSpace(mantissa), "+-"))
	return m * math.Pow10(e-digits), nil
}

// atoi parses a right-aligned integer column; blank columns read as zero.
func atoi(col string) (int, error) {
	col = strings.TrimSpace(col)
	if col == "" {
		return 0, nil
	}
	return strconv.Atoi(col)
}
