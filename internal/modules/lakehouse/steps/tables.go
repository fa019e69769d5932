package steps

import (
	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/store"
)

// Output table names, also their directory under the output root.
const (
	TableItems         = "items"
	TableEntities      = "entities"
	TableUsers         = "users"
	TableTimeBreakdown = "time_breakdown"
	TableInteractions  = "interactions"
)

// TableOrder is the reporting order of the five tables.
var TableOrder = []string{TableItems, TableEntities, TableUsers, TableTimeBreakdown, TableInteractions}

// PartitionColumns lists the hive partition columns of each table.
var PartitionColumns = map[string][]string{
	TableItems:         {"release_year", "owner_id"},
	TableEntities:      nil,
	TableUsers:         nil,
	TableTimeBreakdown: {"year", "month"},
	TableInteractions:  {"year", "month"},
}

// TableLocation is the directory of table under root.
func TableLocation(root, table string) string {
	return store.AsDir(store.Join(root, table))
}

// Only the page that records a played item qualifies as an interaction.
const PlayPage = "NextSong"

// CatalogSchema is the projection read from raw catalog records.
var CatalogSchema = frame.MustSchema(
	frame.Field{Name: "song_id", Type: frame.String},
	frame.Field{Name: "title", Type: frame.String},
	frame.Field{Name: "artist_id", Type: frame.String},
	frame.Field{Name: "year", Type: frame.Int64},
	frame.Field{Name: "duration", Type: frame.Float64},
	frame.Field{Name: "artist_name", Type: frame.String},
	frame.Field{Name: "artist_location", Type: frame.String},
	frame.Field{Name: "artist_latitude", Type: frame.Float64},
	frame.Field{Name: "artist_longitude", Type: frame.Float64},
)

// EventSchema is the projection read from raw event records.
var EventSchema = frame.MustSchema(
	frame.Field{Name: "userId", Type: frame.String},
	frame.Field{Name: "firstName", Type: frame.String},
	frame.Field{Name: "lastName", Type: frame.String},
	frame.Field{Name: "gender", Type: frame.String},
	frame.Field{Name: "level", Type: frame.String},
	frame.Field{Name: "ts", Type: frame.Int64},
	frame.Field{Name: "page", Type: frame.String},
	frame.Field{Name: "song", Type: frame.String},
	frame.Field{Name: "artist", Type: frame.String},
	frame.Field{Name: "sessionId", Type: frame.Int64},
	frame.Field{Name: "location", Type: frame.String},
	frame.Field{Name: "userAgent", Type: frame.String},
)

var ItemsSchema = frame.MustSchema(
	frame.Field{Name: "item_id", Type: frame.String},
	frame.Field{Name: "title", Type: frame.String},
	frame.Field{Name: "owner_id", Type: frame.String},
	frame.Field{Name: "release_year", Type: frame.Int64},
	frame.Field{Name: "duration", Type: frame.Float64},
)

var EntitiesSchema = frame.MustSchema(
	frame.Field{Name: "owner_id", Type: frame.String},
	frame.Field{Name: "name", Type: frame.String},
	frame.Field{Name: "location", Type: frame.String},
	frame.Field{Name: "latitude", Type: frame.Float64},
	frame.Field{Name: "longitude", Type: frame.Float64},
)

var UsersSchema = frame.MustSchema(
	frame.Field{Name: "user_id", Type: frame.String},
	frame.Field{Name: "first_name", Type: frame.String},
	frame.Field{Name: "last_name", Type: frame.String},
	frame.Field{Name: "gender", Type: frame.String},
	frame.Field{Name: "level", Type: frame.String},
)

var TimeBreakdownSchema = frame.MustSchema(
	frame.Field{Name: "timestamp", Type: frame.Timestamp},
	frame.Field{Name: "hour", Type: frame.Int64},
	frame.Field{Name: "day", Type: frame.Int64},
	frame.Field{Name: "week_of_year", Type: frame.Int64},
	frame.Field{Name: "month", Type: frame.Int64},
	frame.Field{Name: "year", Type: frame.Int64},
	frame.Field{Name: "weekday", Type: frame.Int64},
)

var InteractionsSchema = frame.MustSchema(
	frame.Field{Name: "interaction_id", Type: frame.Int64},
	frame.Field{Name: "timestamp", Type: frame.Timestamp},
	frame.Field{Name: "year", Type: frame.Int64},
	frame.Field{Name: "month", Type: frame.Int64},
	frame.Field{Name: "user_id", Type: frame.String},
	frame.Field{Name: "level", Type: frame.String},
	frame.Field{Name: "item_id", Type: frame.String},
	frame.Field{Name: "owner_id", Type: frame.String},
	frame.Field{Name: "session_id", Type: frame.Int64},
	frame.Field{Name: "location", Type: frame.String},
	frame.Field{Name: "client_agent", Type: frame.String},
)

// Schemas maps each table to its output schema.
var Schemas = map[string]*frame.Schema{
	TableItems:         ItemsSchema,
	TableEntities:      EntitiesSchema,
	TableUsers:         UsersSchema,
	TableTimeBreakdown: TimeBreakdownSchema,
	TableInteractions:  InteractionsSchema,
}
