// Package scanlog reads and writes the plain-text scan log: one coordinate
// per space-delimited line.
//
// Native files start with a two-line header (a separator marker and the
// column names) followed by 8-field lines:
//
//	key x z y radius inclination azimuth laser
//
// The x z y columns carry the two horizontal components first and the
// vertical last, so they map to X, Y, Z in the simulator's Z-up frame.
// Foreign dumps (KITTI-style) have no header and 4 fields, x z y plus an
// intensity column that is ignored; their points are stored under
// lidar.ForeignScanKey without angles.
package scanlog

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/lidar/storage"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// Header lines written at the top of every native file.
const (
	SeparatorLine = "sep= "
	ColumnLine    = "key x z y radius inclination azimuth laser"
)

const (
	nativeFields  = 8
	foreignFields = 4
	maxLineBytes  = 1 << 20
)

// Result is the outcome of decoding a scan log.
type Result struct {
	Data    storage.Data
	Lines   int // data lines seen, header excluded
	Records int // coordinates decoded
	Skipped int // malformed lines
	Foreign int // 4-field lines among Records
}

// Decode parses a scan log. Malformed lines are logged and skipped; the
// error is only non-nil when reading r fails, in which case the lines read
// so far are still returned. Consecutive lines with the same key form one
// batch.
func Decode(r io.Reader) (Result, error) {
	br := bufio.NewReader(r)
	res := Result{Data: make(storage.Data)}

	if b, err := br.Peek(1); err == nil && b[0] == 's' {
		for i := 0; i < 2; i++ {
			if _, err := br.ReadString('\n'); err != nil {
				if err == io.EOF {
					return res, nil
				}
				return res, fmt.Errorf("failed to read header: %w", err)
			}
		}
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		lastKey float64
		open    bool
	)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		res.Lines++

		key, c, err := parseLine(line)
		if err != nil {
			res.Skipped++
			monitoring.Diagf("scanlog: line %d skipped: %v", lineNo, err)
			continue
		}
		res.Records++
		if !c.HasAngles() {
			res.Foreign++
		}

		batches := res.Data[key]
		if !open || key != lastKey || len(batches) == 0 {
			batches = append(batches, lidar.ScanBatch{Key: key})
		}
		last := &batches[len(batches)-1]
		last.Points = append(last.Points, c)
		res.Data[key] = batches
		lastKey, open = key, true
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("failed to read line %d: %w", lineNo+1, err)
	}
	return res, nil
}

func parseLine(line string) (float64, lidar.SphericalCoordinate, error) {
	f := strings.Fields(line)
	switch len(f) {
	case nativeFields:
		var v [7]float64
		for i := range v {
			x, err := parseFinite(f[i])
			if err != nil {
				return 0, lidar.SphericalCoordinate{}, fmt.Errorf("field %d: %w", i+1, err)
			}
			v[i] = x
		}
		laser, err := strconv.Atoi(f[7])
		if err != nil {
			return 0, lidar.SphericalCoordinate{}, fmt.Errorf("laser id: %w", err)
		}
		key := v[0]
		p := r3.Vec{X: v[1], Y: v[2], Z: v[3]}
		return key, lidar.NewSphericalCoordinate(v[4], v[5], v[6], p, laser, key), nil

	case foreignFields:
		var v [3]float64
		for i := range v {
			x, err := parseFinite(f[i])
			if err != nil {
				return 0, lidar.SphericalCoordinate{}, fmt.Errorf("field %d: %w", i+1, err)
			}
			v[i] = x
		}
		p := r3.Vec{X: v[0], Y: v[1], Z: v[2]}
		return lidar.ForeignScanKey, lidar.NewCartesianCoordinate(p, lidar.ForeignScanKey), nil
	}
	return 0, lidar.SphericalCoordinate{}, fmt.Errorf("expected %d or %d fields, got %d", nativeFields, foreignFields, len(f))
}

// parseFinite parses a float and rejects NaN and infinities, which cannot
// serve as map keys or coordinates.
func parseFinite(field string) (float64, error) {
	x, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("non-finite value %q", field)
	}
	return x, nil
}

// Encode writes data as a native scan log: keys ascending, batches in
// recording order. Coordinates without angles are written as 4-field lines.
// It returns the number of coordinates written.
func Encode(w io.Writer, data storage.Data) (int, error) {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%s\n", SeparatorLine, ColumnLine); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	n := 0
	buf := make([]byte, 0, 128)
	for _, key := range data.SortedKeys() {
		for _, b := range data[key] {
			for _, c := range b.Points {
				buf = appendLine(buf[:0], key, c)
				if _, err := bw.Write(buf); err != nil {
					return n, fmt.Errorf("failed to write coordinate %d: %w", n, err)
				}
				n++
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush scan log: %w", err)
	}
	return n, nil
}

func appendLine(buf []byte, key float64, c lidar.SphericalCoordinate) []byte {
	p := c.ToCartesian()
	if !c.HasAngles() {
		buf = appendFloat(buf, p.X, ' ')
		buf = appendFloat(buf, p.Y, ' ')
		buf = appendFloat(buf, p.Z, ' ')
		return append(buf, '0', '\n')
	}
	buf = appendFloat(buf, key, ' ')
	buf = appendFloat(buf, p.X, ' ')
	buf = appendFloat(buf, p.Y, ' ')
	buf = appendFloat(buf, p.Z, ' ')
	buf = appendFloat(buf, c.Radius(), ' ')
	buf = appendFloat(buf, c.Inclination(), ' ')
	buf = appendFloat(buf, c.Azimuth(), ' ')
	buf = strconv.AppendInt(buf, int64(c.LaserID()), 10)
	return append(buf, '\n')
}

// appendFloat writes the shortest decimal that parses back to v.
func appendFloat(buf []byte, v float64, sep byte) []byte {
	buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
	return append(buf, sep)
}
