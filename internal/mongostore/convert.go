package mongostore

import (
	"sort"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func buildWriteModels(data []map[string]interface{}, o backend.WriteOptions) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, len(data))
	for i, item := range data {
		doc := make(bson.M, len(item))
		for k, v := range item {
			doc[k] = v
		}
		if len(o.Index) == 0 {
			writes[i] = mongo.NewInsertOneModel().SetDocument(doc)
			continue
		}
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(identityFilter(item, o)).
			SetReplacement(doc).
			SetUpsert(true)
	}
	return writes
}

// identityFilter matches the stored record with the same index values and time
func identityFilter(item map[string]interface{}, o backend.WriteOptions) bson.D {
	keys := append([]string{}, o.Index...)
	if _, ok := item[o.TimeField]; ok {
		keys = append(keys, o.TimeField)
	}
	sort.Strings(keys)

	filter := bson.D{}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		filter = append(filter, bson.E{Key: k, Value: item[k]})
	}
	return filter
}

func buildFilter(filter map[string]interface{}) bson.M {
	out := make(bson.M, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	return out
}

func findOptions(q backend.Query, timeField string) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: timeField, Value: 1}})

	projection := bson.M{"_id": 0}
	if len(q.Projection) > 0 {
		for _, f := range q.Projection {
			projection[f] = 1
		}
		projection[timeField] = 1
		for k := range q.Filter {
			projection[k] = 1
		}
	}
	opts.SetProjection(projection)

	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

func deleteFilter(timeField string, start, stop time.Time, tags map[string]string) bson.M {
	filter := bson.M{timeField: bson.M{"$gte": start, "$lte": stop}}
	for k, v := range tags {
		filter[k] = v
	}
	return filter
}

// toRow converts a decoded document to plain Go values
// buildTable converts found documents to a table. storedTime is the
// document key holding the timestamp; the column is renamed to q.TimeField
// when one is requested.
func buildTable(docs []bson.M, storedTime string, q backend.Query) *models.Table {
	rows := make([]models.Row, len(docs))
	for i, doc := range docs {
		rows[i] = toRow(doc, storedTime, q.LocalTime)
	}
	table := models.NewTable(rows)
	if q.TimeField != "" {
		table.RenameColumn(storedTime, q.TimeField)
	}
	return table
}

func toRow(doc bson.M, timeField string, localTime bool) models.Row {
	row := make(models.Row, len(doc))
	for k, v := range doc {
		row[k] = plain(v)
	}
	if ts, ok := row[timeField].(time.Time); ok {
		if localTime {
			row[timeField] = ts.In(time.Local)
		} else {
			row[timeField] = ts.UTC()
		}
	}
	return row
}

func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time()
	case primitive.ObjectID:
		return t.Hex()
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = plain(val)
		}
		return m
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}
