// Package mongorepos implements the repositories over MongoDB.
package mongorepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/schoolstats/core"
	"github.com/trezcool/schoolstats/core/report"
	"github.com/trezcool/schoolstats/core/valuetree"
)

const (
	reportCollection = "report"
	childCollection  = "child_report"
)

type (
	reportDoc struct {
		ID         string    `bson:"_id"`
		Province   string    `bson:"province"`
		Ward       string    `bson:"ward"`
		School     string    `bson:"school"`
		ReportType string    `bson:"reportType"`
		Pending    []string  `bson:"pending"`
		Done       []string  `bson:"done"`
		User       string    `bson:"user,omitempty"`
		CreatedAt  time.Time `bson:"createdAt"`
		UpdatedAt  time.Time `bson:"updatedAt"`
	}

	childDoc struct {
		ID         string    `bson:"_id"`
		ReportID   string    `bson:"reportId"`
		SectionKey string    `bson:"reportKey"`
		Status     string    `bson:"status"`
		Data       bson.M    `bson:"data"`
		UpdatedAt  time.Time `bson:"updatedAt"`
	}
)

// orderFields maps the allowed orderings to their document field.
var orderFields = map[string]string{
	report.OrderByUpdatedAt: "updatedAt",
	report.OrderBySchool:    "school",
	report.OrderByWard:      "ward",
}

// Open connects to the MongoDB server at conf.MongoURI and ensures the report indexes exist.
func Open(ctx context.Context, conf core.DatabaseConfig) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.MongoURI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongo")
	}
	db := client.Database(conf.Name)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(reportCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reportType", Value: 1}, {Key: "school", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user", Value: 1}}},
		{Keys: bson.D{{Key: "ward", Value: 1}}},
	})
	if err != nil {
		return errors.Wrap(err, "creating report indexes")
	}
	_, err = db.Collection(childCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "reportId", Value: 1}, {Key: "reportKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "creating child report indexes")
}

type reportRepository struct {
	reports  *mongo.Collection
	children *mongo.Collection
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(db *mongo.Database) report.Repository {
	return &reportRepository{
		reports:  db.Collection(reportCollection),
		children: db.Collection(childCollection),
	}
}

func toDoc(r report.Report) reportDoc {
	return reportDoc{
		ID:         r.ID,
		Province:   r.Province,
		Ward:       r.Ward,
		School:     r.School,
		ReportType: r.ReportType,
		Pending:    nonNil(r.Status.Pending),
		Done:       nonNil(r.Status.Done),
		User:       r.User,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (doc reportDoc) report() report.Report {
	return report.Report{
		ID:         doc.ID,
		Province:   doc.Province,
		Ward:       doc.Ward,
		School:     doc.School,
		ReportType: doc.ReportType,
		Status:     report.StatusSets{Pending: nonNil(doc.Pending), Done: nonNil(doc.Done)},
		User:       doc.User,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func (doc childDoc) child() report.ChildReport {
	data, _ := normalize(doc.Data).(map[string]interface{})
	return report.ChildReport{
		ID:         doc.ID,
		ReportID:   doc.ReportID,
		SectionKey: doc.SectionKey,
		Status:     report.Status(doc.Status),
		Data:       valuetree.FromMap(data),
		UpdatedAt:  doc.UpdatedAt,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// normalize turns decoded BSON values back into the plain JSON-like values of a valuetree.Tree.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, e := range val {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.A:
		return normalizeSlice(val)
	case []interface{}:
		return normalizeSlice(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	}
	return v
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(m))
	for k, v := range m {
		res[k] = normalize(v)
	}
	return res
}

func normalizeSlice(s []interface{}) []interface{} {
	res := make([]interface{}, len(s))
	for i, v := range s {
		res[i] = normalize(v)
	}
	return res
}

func trapNoDocsErr(err error, msg string) error {
	if err == mongo.ErrNoDocuments {
		return report.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo reportRepository) CreateReport(ctx context.Context, r report.Report) (report.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, err := repo.reports.InsertOne(ctx, toDoc(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return report.Report{}, report.ErrReportExists
		}
		return report.Report{}, errors.Wrap(err, "inserting report")
	}
	return r, nil
}

func (repo reportRepository) GetReport(ctx context.Context, id string) (report.Report, error) {
	var doc reportDoc
	if err := repo.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return report.Report{}, trapNoDocsErr(err, "finding report by ID")
	}
	return doc.report(), nil
}

func (repo reportRepository) FilterReports(ctx context.Context, filter report.QueryFilter) ([]report.Report, error) {
	query := bson.M{}
	add := func(field, value string) {
		if value != "" {
			query[field] = value
		}
	}
	add("user", filter.User)
	add("reportType", filter.ReportType)
	add("province", filter.Province)
	add("ward", filter.Ward)
	add("school", filter.School)

	sort := bson.D{}
	for _, ord := range filter.Ordering {
		if field, ok := orderFields[ord.Field]; ok {
			dir := -1
			if ord.Ascending {
				dir = 1
			}
			sort = append(sort, bson.E{Key: field, Value: dir})
		}
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	cur, err := repo.reports.Find(ctx, query, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	var docs []reportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding reports")
	}
	reports := make([]report.Report, 0, len(docs))
	for _, doc := range docs {
		reports = append(reports, doc.report())
	}
	return reports, nil
}

func (repo reportRepository) DeleteReport(ctx context.Context, id string) error {
	res, err := repo.reports.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting report")
	}
	if res.DeletedCount == 0 {
		return report.ErrNotFound
	}
	if _, err := repo.children.DeleteMany(ctx, bson.M{"reportId": id}); err != nil {
		return errors.Wrap(err, "deleting child reports")
	}
	return nil
}

func (repo reportRepository) GetChildReport(ctx context.Context, reportID, sectionKey string) (report.ChildReport, error) {
	var doc childDoc
	err := repo.children.FindOne(ctx, bson.M{"reportId": reportID, "reportKey": sectionKey}).Decode(&doc)
	if err != nil {
		return report.ChildReport{}, trapNoDocsErr(err, "finding child report")
	}
	return doc.child(), nil
}

// moveStatus is an update pipeline listing key under status only, in a single document write.
func moveStatus(key string, status report.Status, at time.Time) mongo.Pipeline {
	drop := func(field string) bson.M {
		return bson.M{"$filter": bson.M{
			"input": bson.M{"$ifNull": bson.A{"$" + field, bson.A{}}},
			"cond":  bson.M{"$ne": bson.A{"$$this", key}},
		}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"pending": drop("pending"), "done": drop("done"), "updatedAt": at}}},
	}
	var field string
	switch status {
	case report.StatusPending:
		field = "pending"
	case report.StatusDone:
		field = "done"
	default:
		return pipeline
	}
	return append(pipeline, bson.D{{Key: "$set", Value: bson.M{
		field: bson.M{"$concatArrays": bson.A{"$" + field, bson.A{key}}},
	}}})
}

// CommitChildReport moves the status of the section in the report before writing the child report:
// each write is atomic on its own document.
func (repo reportRepository) CommitChildReport(ctx context.Context, child report.ChildReport) (report.ChildReport, report.Report, error) {
	at := child.UpdatedAt.UTC()

	var rdoc reportDoc
	err := repo.reports.FindOneAndUpdate(ctx,
		bson.M{"_id": child.ReportID},
		moveStatus(child.SectionKey, child.Status, at),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&rdoc)
	if err != nil {
		return report.ChildReport{}, report.Report{}, trapNoDocsErr(err, "updating report status")
	}

	if child.ID == "" {
		child.ID = uuid.NewString()
	}
	data := map[string]interface{}(child.Data)
	if data == nil {
		data = map[string]interface{}{}
	}
	var cdoc childDoc
	err = repo.children.FindOneAndUpdate(ctx,
		bson.M{"reportId": child.ReportID, "reportKey": child.SectionKey},
		bson.M{
			"$set":         bson.M{"status": string(child.Status), "data": data, "updatedAt": at},
			"$setOnInsert": bson.M{"_id": child.ID},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&cdoc)
	if err != nil {
		return report.ChildReport{}, report.Report{}, errors.Wrap(err, "upserting child report")
	}
	return cdoc.child(), rdoc.report(), nil
}
