package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ErrUnsupportedFilter is returned for filter values that cannot be matched
// exactly, such as lists.
var ErrUnsupportedFilter = errors.New("unsupported filter value")

// ValidateCollectionName checks name against ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Reserved keys written alongside caller metadata.
const (
	// typesKey holds a JSON object mapping non-string chromem metadata keys
	// to their kind so they decode back to the original type.
	typesKey = "_types"

	// contentKey and idKey carry the document body and caller ID in a
	// Qdrant payload.
	contentKey = "content"
	idKey      = "id"
)

const (
	kindList  = "list"
	kindInt   = "int"
	kindFloat = "float"
	kindBool  = "bool"
)

// formatScalar renders a scalar metadata value as chromem stores it.
func formatScalar(v interface{}) (string, string, bool) {
	switch val := v.(type) {
	case string:
		return val, "", true
	case int:
		return strconv.Itoa(val), kindInt, true
	case int32:
		return strconv.FormatInt(int64(val), 10), kindInt, true
	case int64:
		return strconv.FormatInt(val, 10), kindInt, true
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), kindFloat, true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), kindFloat, true
	case bool:
		return strconv.FormatBool(val), kindBool, true
	}
	return "", "", false
}

// encodeStringMetadata flattens metadata to the string map chromem stores.
// Lists become JSON arrays.
func encodeStringMetadata(metadata map[string]interface{}) (map[string]string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}

	result := make(map[string]string, len(metadata)+1)
	kinds := make(map[string]string)
	for k, v := range metadata {
		if k == typesKey {
			return nil, fmt.Errorf("metadata key %q is reserved", typesKey)
		}
		if s, kind, ok := formatScalar(v); ok {
			result[k] = s
			if kind != "" {
				kinds[k] = kind
			}
			continue
		}
		list, ok := v.([]string)
		if !ok {
			result[k] = fmt.Sprintf("%v", v)
			continue
		}
		if list == nil {
			list = []string{}
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata %q: %w", k, err)
		}
		result[k] = string(encoded)
		kinds[k] = kindList
	}

	if len(kinds) > 0 {
		encoded, err := json.Marshal(kinds)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata types: %w", err)
		}
		result[typesKey] = string(encoded)
	}
	return result, nil
}

// decodeStringMetadata reverses encodeStringMetadata. Values whose recorded
// kind fails to parse are returned as stored.
func decodeStringMetadata(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	var kinds map[string]string
	if raw, ok := metadata[typesKey]; ok {
		_ = json.Unmarshal([]byte(raw), &kinds)
	}

	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if k == typesKey {
			continue
		}
		result[k] = decodeKind(kinds[k], v)
	}
	return result
}

func decodeKind(kind, v string) interface{} {
	switch kind {
	case kindList:
		var list []string
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			if list == nil {
				list = []string{}
			}
			return list
		}
	case kindInt:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	case kindFloat:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case kindBool:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}

// stringFilter converts filters to a chromem where clause.
func stringFilter(filters map[string]interface{}) (map[string]string, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	where := make(map[string]string, len(filters))
	for k, v := range filters {
		s, _, ok := formatScalar(v)
		if !ok {
			return nil, fmt.Errorf("%w: %q has type %T", ErrUnsupportedFilter, k, v)
		}
		where[k] = s
	}
	return where, nil
}

// payloadFromDocument builds the Qdrant payload for doc. Lists are stored as
// native list values.
func payloadFromDocument(doc Document) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		switch val := v.(type) {
		case string:
			payload[k] = qdrant.NewValueString(val)
		case int:
			payload[k] = qdrant.NewValueInt(int64(val))
		case int32:
			payload[k] = qdrant.NewValueInt(int64(val))
		case int64:
			payload[k] = qdrant.NewValueInt(val)
		case float32:
			payload[k] = qdrant.NewValueDouble(float64(val))
		case float64:
			payload[k] = qdrant.NewValueDouble(val)
		case bool:
			payload[k] = qdrant.NewValueBool(val)
		case []string:
			values := make([]*qdrant.Value, len(val))
			for i, s := range val {
				values[i] = qdrant.NewValueString(s)
			}
			payload[k] = qdrant.NewValueFromList(values...)
		default:
			payload[k] = qdrant.NewValueString(fmt.Sprintf("%v", val))
		}
	}
	payload[contentKey] = qdrant.NewValueString(doc.Content)
	payload[idKey] = qdrant.NewValueString(doc.ID)
	return payload
}

// resultFromPoint decodes a scored point back into a SearchResult.
func resultFromPoint(point *qdrant.ScoredPoint) SearchResult {
	result := SearchResult{
		Score:    point.GetScore(),
		Metadata: make(map[string]interface{}, len(point.GetPayload())),
	}
	for k, v := range point.GetPayload() {
		switch k {
		case contentKey:
			result.Content = v.GetStringValue()
			continue
		case idKey:
			result.ID = v.GetStringValue()
			continue
		}
		result.Metadata[k] = decodeValue(v)
	}
	return result
}

func decodeValue(v *qdrant.Value) interface{} {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return int(val.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]string, 0, len(val.ListValue.GetValues()))
		for _, item := range val.ListValue.GetValues() {
			list = append(list, item.GetStringValue())
		}
		return list
	}
	return nil
}

// payloadFilter converts filters to Qdrant match conditions.
func payloadFilter(filters map[string]interface{}) (*qdrant.Filter, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for k, v := range filters {
		switch val := v.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(k, val))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(k, int64(val)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(k, val))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(k, val))
		default:
			return nil, fmt.Errorf("%w: %q has type %T", ErrUnsupportedFilter, k, v)
		}
	}
	return &qdrant.Filter{Must: conditions}, nil
}
