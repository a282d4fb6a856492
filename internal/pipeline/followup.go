package pipeline

import "go.mongodb.org/mongo-driver/v2/bson"

// BuildIsAboveMeanPipeline assembles the PI-side follow-up aggregation of
// spec.md §8 scenario 5: given an observed value bound via the closed
// height_input/input_bp validator, compare it against the stored
// population mean for field and project -1/0/1 (below/equal/above).
// collection names the population-statistics collection, which carries one
// document per field with a precomputed "mean".
func BuildIsAboveMeanPipeline(collection, field string) bson.A {
	comparison := bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: bson.A{
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$gt", Value: bson.A{"$$observed", "$mean"}}}},
				{Key: "then", Value: 1},
			},
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$lt", Value: bson.A{"$$observed", "$mean"}}}},
				{Key: "then", Value: -1},
			},
		}},
		{Key: "default", Value: 0},
	}}}

	return bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "field", Value: field}}}},
		bson.D{{Key: "$limit", Value: 1}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "result", Value: bson.D{{Key: "$let", Value: bson.D{
				{Key: "vars", Value: bson.D{{Key: "observed", Value: "$height_input"}}},
				{Key: "in", Value: comparison},
			}}}},
		}}},
	}
}
