package cache

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/model"
	"github.com/devlens/enginemetrics/version"
)

// magic identifies an enginemetrics cache artifact file.
var magic = [8]byte{'E', 'N', 'G', 'M', 'E', 'T', 'R', 'C'}

// formatVersion is the only version byte this build knows how to read.
const formatVersion byte = 1

// Header is the self-describing artifact header, written before the
// payload on every disk/redis artifact.
type Header struct {
	FormatVersion     byte      `cbor:"formatVersion"`
	CreatedAt         time.Time `cbor:"createdAt"`
	RangeSpec         string    `cbor:"rangeSpec"`
	Environment       string    `cbor:"environment"`
	CollectorVersions []string  `cbor:"collectorVersions"`
}

// Payload is the full typed content of one cache artifact.
type Payload struct {
	Teams      []model.TeamMetrics   `cbor:"teams"`
	Persons    []model.PersonMetrics `cbor:"persons"`
	Comparison model.ComparisonView  `cbor:"comparison"`
}

// Artifact bundles the header and payload as read from or about to be
// written to the cold tier.
type Artifact struct {
	Header  Header
	Payload Payload
}

// NewArtifact stamps a fresh artifact for rangeSpec/environment with the
// current build's collector version.
func NewArtifact(rangeSpec string, environment model.Environment, payload Payload, createdAt time.Time) Artifact {
	return Artifact{
		Header: Header{
			FormatVersion:     formatVersion,
			CreatedAt:         createdAt,
			RangeSpec:         rangeSpec,
			Environment:       string(environment),
			CollectorVersions: []string{version.CollectorVersion()},
		},
		Payload: payload,
	}
}

// Encode serializes a to the opaque binary container: magic + version
// byte + cbor-encoded {Header, Payload}.
func Encode(a Artifact) ([]byte, error) {
	body, err := cbor.Marshal(struct {
		Header  Header
		Payload Payload
	}{a.Header, a.Payload})
	if err != nil {
		return nil, errkind.New(errkind.Internal, "cache.Encode", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(magic)+1+len(body)))
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decode parses raw into an Artifact, refusing any file whose magic or
// version byte does not match this build's expectations.
func Decode(raw []byte) (Artifact, error) {
	if len(raw) < len(magic)+1 {
		return Artifact{}, errkind.New(errkind.CacheCorrupt, "cache.Decode", fmt.Errorf("truncated artifact: %d bytes", len(raw)))
	}
	if !bytes.Equal(raw[:len(magic)], magic[:]) {
		return Artifact{}, errkind.New(errkind.CacheCorrupt, "cache.Decode", fmt.Errorf("bad magic"))
	}
	ver := raw[len(magic)]
	if ver != formatVersion {
		return Artifact{}, errkind.New(errkind.CacheCorrupt, "cache.Decode", fmt.Errorf("unknown artifact version %d", ver))
	}

	var body struct {
		Header  Header
		Payload Payload
	}
	if err := cbor.Unmarshal(raw[len(magic)+1:], &body); err != nil {
		return Artifact{}, errkind.New(errkind.CacheCorrupt, "cache.Decode", err)
	}
	return Artifact{Header: body.Header, Payload: body.Payload}, nil
}
