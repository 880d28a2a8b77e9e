// File: internal/testdata/generator.go
package testdata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// DataType selects the record generator.
type DataType string

const (
	TypeUser                 DataType = "user"
	TypeProduct              DataType = "product"
	TypeOrder                DataType = "order"
	TypeTransaction          DataType = "transaction"
	TypeBoundaryValue        DataType = "boundaryValue"
	TypeEquivalencePartition DataType = "equivalencePartition"
	TypeSecurityTest         DataType = "securityTest"
	TypeCustom               DataType = "custom"
	TypeCustomJSON           DataType = "customJson"
)

// AllTypes lists every supported data type.
var AllTypes = []DataType{
	TypeUser, TypeProduct, TypeOrder, TypeTransaction,
	TypeBoundaryValue, TypeEquivalencePartition, TypeSecurityTest,
	TypeCustom, TypeCustomJSON,
}

const (
	SourceLocal         = "local"
	SourceLocalFallback = "local_fallback"
	SourceAIService     = "ai_service"

	DefaultCount = 10
	MaxCount     = 1000
)

// ErrUnknownDataType is returned for a data type outside AllTypes.
var ErrUnknownDataType = errors.New("unknown data type")

// Options tunes the technique based generators.
type Options struct {
	IncludeEdgeCases bool     `json:"includeEdgeCases,omitempty"`
	FieldName        string   `json:"fieldName,omitempty"`
	FieldType        string   `json:"fieldType,omitempty"`
	MinValue         *float64 `json:"minValue,omitempty"`
	MaxValue         *float64 `json:"maxValue,omitempty"`
	PartitionType    string   `json:"partitionType,omitempty"`
}

// Request describes one generation call.
type Request struct {
	DataType DataType `json:"dataType"`
	Count    int      `json:"count"`
	// Schema maps field names to type hints for custom, or is a template
	// with {{faker.*}} placeholders for customJson.
	Schema  any      `json:"schema,omitempty"`
	Options *Options `json:"options,omitempty"`
	// Seed makes a run reproducible.
	Seed *uint64 `json:"seed,omitempty"`
}

// Metadata describes a generation result.
type Metadata struct {
	GeneratedCount int      `json:"generatedCount"`
	DataType       DataType `json:"dataType"`
	ProcessingTime int64    `json:"processingTime"`
	Source         string   `json:"source"`
}

// Result is a generated data set.
type Result struct {
	Data     []any    `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// ClampCount bounds count to [1, limit]; zero or less selects DefaultCount.
func ClampCount(count, limit int) int {
	if limit <= 0 {
		limit = MaxCount
	}
	if count <= 0 {
		count = DefaultCount
	}
	return min(count, limit)
}

// ParseType validates a raw data type, defaulting to user when empty.
func ParseType(raw string) (DataType, error) {
	if raw == "" {
		return TypeUser, nil
	}
	for _, t := range AllTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: '%s'", ErrUnknownDataType, raw)
}

// Generator produces synthetic records locally. It is safe for concurrent
// use; every call draws from its own random source.
type Generator struct {
	maxCount int
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerator creates a generator that never returns more than maxCount records.
func NewGenerator(maxCount int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxCount <= 0 {
		maxCount = MaxCount
	}
	return &Generator{maxCount: maxCount, logger: logger.Named("testdata"), now: time.Now}
}

// MaxCount returns the configured upper bound on records per call.
func (g *Generator) MaxCount() int { return g.maxCount }

// Generate builds req.Count records of req.DataType.
func (g *Generator) Generate(req Request) (*Result, error) {
	start := g.now()
	dt, err := ParseType(string(req.DataType))
	if err != nil {
		return nil, err
	}
	count := ClampCount(req.Count, g.maxCount)
	opts := Options{}
	if req.Options != nil {
		opts = *req.Options
	}

	var seed [32]byte
	if req.Seed != nil {
		binary.LittleEndian.PutUint64(seed[:8], *req.Seed)
	} else {
		for i := 0; i < len(seed); i += 8 {
			binary.LittleEndian.PutUint64(seed[i:], rand.Uint64())
		}
	}
	src := rand.NewChaCha8(seed)
	f := &faker{src: src, rnd: rand.New(src), now: g.now()}

	data := make([]any, 0, count)
	for i := range count {
		data = append(data, f.record(dt, i, req.Schema, opts))
	}
	if opts.IncludeEdgeCases {
		edges := f.edgeCases(dt)
		n := min(len(edges), 3, count)
		copy(data[count-n:], edges[:n])
	}

	res := &Result{
		Data: data,
		Metadata: Metadata{
			GeneratedCount: len(data),
			DataType:       dt,
			ProcessingTime: g.now().Sub(start).Milliseconds(),
			Source:         SourceLocal,
		},
	}
	g.logger.Debug("Generated test data", zap.String("data_type", string(dt)), zap.Int("count", len(data)))
	return res, nil
}

func (f *faker) record(dt DataType, i int, schema any, opts Options) any {
	switch dt {
	case TypeProduct:
		return f.product(i)
	case TypeOrder:
		return f.order(i)
	case TypeTransaction:
		return f.transaction(i)
	case TypeBoundaryValue:
		return f.boundaryValue(i, opts)
	case TypeEquivalencePartition:
		return f.equivalencePartition(i, opts)
	case TypeSecurityTest:
		return securityTest(i)
	case TypeCustom:
		return f.custom(i, schema)
	case TypeCustomJSON:
		return f.customJSON(i, schema)
	default:
		return f.user(i)
	}
}
