package store

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// canonical BSON comparison order of value classes
const (
	orderNull = iota + 1
	orderNumber
	orderString
	orderObject
	orderArray
	orderBinary
	orderObjectID
	orderBool
	orderDate
	orderRegex
	orderOther
)

func typeOrder(v interface{}) int {
	switch v.(type) {
	case nil, bson.Null, bson.Undefined:
		return orderNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return orderNumber
	case string, bson.Symbol:
		return orderString
	case map[string]interface{}, bson.M, bson.D:
		return orderObject
	case []interface{}, bson.A:
		return orderArray
	case []byte, bson.Binary:
		return orderBinary
	case bson.ObjectID:
		return orderObjectID
	case bool:
		return orderBool
	case time.Time, bson.DateTime, bson.Timestamp:
		return orderDate
	case bson.Regex:
		return orderRegex
	default:
		return orderOther
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case bson.DateTime:
		return t.Time(), true
	case bson.Timestamp:
		return time.Unix(int64(t.T), 0), true
	}
	return time.Time{}, false
}

// compareValues orders two values the way MongoDB sorts them: first by value
// class, then by value within the class.
func compareValues(a, b interface{}) int {
	oa, ob := typeOrder(a), typeOrder(b)
	if oa != ob {
		return cmpInt(oa, ob)
	}

	switch oa {
	case orderNull:
		return 0
	case orderNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmpFloat(fa, fb)
	case orderString:
		return strings.Compare(stringOf(a), stringOf(b))
	case orderObjectID:
		ia, ib := a.(bson.ObjectID), b.(bson.ObjectID)
		return bytes.Compare(ia[:], ib[:])
	case orderBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case orderDate:
		ta, _ := toTime(a)
		tb, _ := toTime(b)
		return ta.Compare(tb)
	case orderArray:
		return compareArrays(asSlice(a), asSlice(b))
	case orderObject:
		return compareObjects(asMap(a), asMap(b))
	case orderBinary:
		return bytes.Compare(asBytes(a), asBytes(b))
	case orderRegex:
		ra, rb := a.(bson.Regex), b.(bson.Regex)
		if c := strings.Compare(ra.Pattern, rb.Pattern); c != 0 {
			return c
		}
		return strings.Compare(ra.Options, rb.Options)
	}
	return 0
}

// equalValues reports value equality across numeric representations
func equalValues(a, b interface{}) bool {
	if typeOrder(a) != typeOrder(b) {
		return false
	}
	return compareValues(a, b) == 0
}

func compareArrays(a, b []interface{}) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareValues(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func compareObjects(a, b map[string]interface{}) int {
	ka, kb := sortedKeys(a), sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := compareValues(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(ka), len(kb))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringOf(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case bson.Symbol:
		return string(s)
	}
	return ""
}

func asSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case bson.A:
		return s
	}
	return nil
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case bson.M:
		return m
	case bson.D:
		out := make(map[string]interface{}, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out
	}
	return nil
}

func asBytes(v interface{}) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case bson.Binary:
		return b.Data
	}
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
