package parquetio

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/lakeflow/internal/lake/frame"
)

// DefaultPartitionName stands for a null or empty partition value.
const DefaultPartitionName = "__HIVE_DEFAULT_PARTITION__"

// partitionKey renders a partition column as the directory value. The
// engine escapes path separators in the value when it writes directories.
func partitionKey(col string) string {
	q := frame.QuoteIdent(col)
	return fmt.Sprintf("COALESCE(NULLIF(CAST(%s AS VARCHAR), ''), %s) AS %s", q, frame.QuoteString(DefaultPartitionName), q)
}

// partitionValue reverses partitionKey for a column read back from the
// directory names as VARCHAR.
func partitionValue(f frame.Field) string {
	q := frame.QuoteIdent(f.Name)
	return fmt.Sprintf("CAST(NULLIF(%s, %s) AS %s) AS %s", q, frame.QuoteString(DefaultPartitionName), f.Type.SQLType(), q)
}

// partitionColumns extracts the column names of the col=value directory
// segments of rel, a file path relative to the table root.
func partitionColumns(rel string) []string {
	segs := strings.Split(rel, "/")
	var out []string
	for _, seg := range segs[:len(segs)-1] {
		k, _, ok := strings.Cut(seg, "=")
		if !ok || k == "" {
			continue
		}
		if u, err := url.PathUnescape(k); err == nil {
			k = u
		}
		out = append(out, k)
	}
	return out
}
