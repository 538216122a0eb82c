package cog

import (
	"fmt"
	"strings"
)

// GeoTIFF key ids this package resolves.
const (
	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyCitation       = 1026
	geoKeyGeographicType = 2048
	geoKeyGeogCitation   = 2049
	geoKeyProjectedCS    = 3072
	geoKeyProjCitation   = 3073
)

// geoKeyUserDefined marks a code the file defines with further keys instead
// of an EPSG registry entry.
const geoKeyUserDefined = 32767

// GeoKey is one entry of the GeoKeyDirectory with its value resolved out of
// the SHORT/DOUBLE/ASCII carrier tags.
type GeoKey struct {
	ID uint16

	shortVal  []uint16
	doubleVal []float64
	asciiVal  string
}

// Short returns the key's first SHORT value.
func (k GeoKey) Short() (uint16, bool) {
	if len(k.shortVal) == 0 {
		return 0, false
	}
	return k.shortVal[0], true
}

// Doubles returns the key's DOUBLE values.
func (k GeoKey) Doubles() ([]float64, bool) { return k.doubleVal, k.doubleVal != nil }

// ASCII returns the key's string value.
func (k GeoKey) ASCII() (string, bool) { return k.asciiVal, k.asciiVal != "" }

// geoKeySet holds the parsed directory of one IFD.
type geoKeySet map[uint16]GeoKey

// parseGeoKeys decodes the GeoKeyDirectory tag and resolves each entry
// against the GeoDoubleParams and GeoAsciiParams carrier tags. An IFD with
// no directory yields an empty set.
func parseGeoKeys(d *IFD) (geoKeySet, error) {
	dirTag, ok := d.Tag(TagGeoKeyDirectory)
	if !ok {
		return geoKeySet{}, nil
	}
	dir, err := dirTag.Shorts()
	if err != nil {
		return nil, fmt.Errorf("GeoKeyDirectory: %w", err)
	}
	if len(dir) < 4 {
		return nil, fmt.Errorf("GeoKeyDirectory header truncated: %w", ErrMalformedTag)
	}
	numKeys := int(dir[3])
	if len(dir) < 4+numKeys*4 {
		return nil, fmt.Errorf("GeoKeyDirectory declares %d keys but holds %d entries: %w",
			numKeys, (len(dir)-4)/4, ErrMalformedTag)
	}

	var doubles []float64
	if t, ok := d.Tag(TagGeoDoubleParams); ok {
		if doubles, err = t.Float64s(); err != nil {
			return nil, fmt.Errorf("GeoDoubleParams: %w", err)
		}
	}
	var ascii string
	if t, ok := d.Tag(TagGeoAsciiParams); ok {
		if ascii, err = t.ASCII(); err != nil {
			return nil, fmt.Errorf("GeoAsciiParams: %w", err)
		}
	}

	keys := make(geoKeySet, numKeys)
	for i := 0; i < numKeys; i++ {
		e := dir[4+i*4 : 4+i*4+4]
		keyID, loc, count, valueOff := e[0], e[1], int(e[2]), int(e[3])

		k := GeoKey{ID: keyID}
		switch loc {
		case 0:
			// Value stored directly in the offset slot.
			k.shortVal = []uint16{uint16(valueOff)}
		case TagGeoDoubleParams:
			if valueOff+count > len(doubles) {
				return nil, fmt.Errorf("geo key %d indexes past GeoDoubleParams: %w", keyID, ErrMalformedTag)
			}
			k.doubleVal = doubles[valueOff : valueOff+count]
		case TagGeoAsciiParams:
			if valueOff+count > len(ascii) {
				return nil, fmt.Errorf("geo key %d indexes past GeoAsciiParams: %w", keyID, ErrMalformedTag)
			}
			// Each ASCII value is terminated with '|' in the carrier tag.
			k.asciiVal = strings.TrimRight(ascii[valueOff:valueOff+count], "|\x00")
		case TagGeoKeyDirectory:
			if valueOff+count > len(dir) {
				return nil, fmt.Errorf("geo key %d indexes past GeoKeyDirectory: %w", keyID, ErrMalformedTag)
			}
			k.shortVal = dir[valueOff : valueOff+count]
		default:
			return nil, fmt.Errorf("geo key %d stored in unknown tag %d: %w", keyID, loc, ErrMalformedTag)
		}
		keys[keyID] = k
	}
	return keys, nil
}

// epsg resolves the coordinate reference system code, preferring a projected
// CS over a geographic one. Returns 0 when the file carries no usable code.
func (ks geoKeySet) epsg() int {
	for _, id := range []uint16{geoKeyProjectedCS, geoKeyGeographicType} {
		if k, ok := ks[id]; ok {
			if v, ok := k.Short(); ok && v != 0 && v != geoKeyUserDefined {
				return int(v)
			}
		}
	}
	return 0
}

// citation returns the best available CRS citation string.
func (ks geoKeySet) citation() string {
	for _, id := range []uint16{geoKeyProjCitation, geoKeyGeogCitation, geoKeyCitation} {
		if k, ok := ks[id]; ok {
			if s, ok := k.ASCII(); ok {
				return s
			}
		}
	}
	return ""
}

// deriveGeotransform builds the pixel-to-model affine from the georeferencing
// tags of an IFD. ModelTransformation takes precedence; otherwise
// ModelPixelScale plus a ModelTiepoint are combined. Returns
// ErrMissingGeoreferencing when neither form is present.
func deriveGeotransform(d *IFD) (Geotransform, error) {
	if t, ok := d.Tag(TagModelTransformation); ok {
		m, err := t.Float64s()
		if err != nil {
			return Geotransform{}, fmt.Errorf("ModelTransformation: %w", err)
		}
		if len(m) < 16 {
			return Geotransform{}, fmt.Errorf("ModelTransformation holds %d of 16 values: %w", len(m), ErrMalformedTag)
		}
		return Geotransform{
			A: m[0], B: m[1], C: m[3],
			D: m[4], E: m[5], F: m[7],
		}, nil
	}

	scaleTag, haveScale := d.Tag(TagModelPixelScale)
	tieTag, haveTie := d.Tag(TagModelTiepoint)
	if !haveScale || !haveTie {
		return Geotransform{}, fmt.Errorf("no ModelTransformation and no ModelPixelScale+ModelTiepoint pair: %w", ErrMissingGeoreferencing)
	}

	scale, err := scaleTag.Float64s()
	if err != nil {
		return Geotransform{}, fmt.Errorf("ModelPixelScale: %w", err)
	}
	tie, err := tieTag.Float64s()
	if err != nil {
		return Geotransform{}, fmt.Errorf("ModelTiepoint: %w", err)
	}
	if len(scale) < 2 || len(tie) < 6 {
		return Geotransform{}, fmt.Errorf("short georeferencing tags (scale %d, tiepoint %d): %w", len(scale), len(tie), ErrMalformedTag)
	}

	// Tiepoint ties raster point (I,J,K) to model point (X,Y,Z).
	px, py := tie[0], tie[1]
	gx, gy := tie[3], tie[4]
	sx, sy := scale[0], scale[1]

	return Geotransform{
		A: sx, B: 0, C: gx - px*sx,
		D: 0, E: -sy, F: gy + py*sy,
	}, nil
}
