package pipeline

import "go.mongodb.org/mongo-driver/v2/bson"

// SentinelAttestationRequired is the value a policy-bearing template yields
// when the requester has only enclave-gated access and has not yet
// attested (spec.md §4.2 step 7, GLOSSARY).
const SentinelAttestationRequired = "attestation required"

// fieldReleaseExpr builds the `$switch` expression tree implementing spec.md
// §4.2's release policy for one field, given:
//
//   - ownerExpr: an aggregation expression that is true when the requester
//     is the record owner (e.g. comparing the document's owner id to
//     "$$userId").
//   - authUserExpr: this requester's entry in the users array of the
//     authorization document (from a prior $lookup into the authorization
//     collection), or missing.
//   - fieldExpr: the raw field value to release when permitted.
//
// This expression is embedded verbatim inside the approved pipeline
// document, not computed in DAP Go code — the Verifier's pipeline hash
// binds the exact policy expression, so the DAP cannot silently substitute
// a laxer rule (spec.md §4.2 closing paragraph).
func fieldReleaseExpr(ownerExpr, authUserExpr, fieldExpr any) bson.D {
	hasRead := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$in", Value: bson.A{"read", bson.D{{Key: "$ifNull", Value: bson.A{
			bson.D{{Key: "$getField", Value: bson.D{{Key: "field", Value: "permissions"}, {Key: "input", Value: authUserExpr}}}},
			bson.A{},
		}}}}}},
		bson.D{{Key: "$gt", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$getField", Value: bson.D{{Key: "field", Value: "expiration"}, {Key: "input", Value: authUserExpr}}}},
				0,
			}}},
			"$$NOW",
		}}},
	}}}

	hasEnclaveUnexpired := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$in", Value: bson.A{"enclave", bson.D{{Key: "$ifNull", Value: bson.A{
			bson.D{{Key: "$getField", Value: bson.D{{Key: "field", Value: "permissions"}, {Key: "input", Value: authUserExpr}}}},
			bson.A{},
		}}}}}},
		bson.D{{Key: "$gt", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{
				bson.D{{Key: "$getField", Value: bson.D{{Key: "field", Value: "expiration"}, {Key: "input", Value: authUserExpr}}}},
				0,
			}}},
			"$$NOW",
		}}},
	}}}

	return bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: bson.A{
			bson.D{{Key: "case", Value: ownerExpr}, {Key: "then", Value: fieldExpr}},
			bson.D{{Key: "case", Value: hasRead}, {Key: "then", Value: fieldExpr}},
			bson.D{{Key: "case", Value: bson.D{{Key: "$and", Value: bson.A{hasEnclaveUnexpired, "$$attestation"}}}}, {Key: "then", Value: fieldExpr}},
			bson.D{{Key: "case", Value: bson.D{{Key: "$and", Value: bson.A{hasEnclaveUnexpired, bson.D{{Key: "$not", Value: "$$attestation"}}}}}}, {Key: "then", Value: SentinelAttestationRequired}},
		}},
		{Key: "default", Value: nil},
	}}}
}

// BuildGetFieldPipeline assembles the full approved pipeline for a
// "get_<field>"-style route: match the owning record by $patient_id, look up
// its authorization document, and project the requested field through
// fieldReleaseExpr. collection/authCollection name the store collections;
// field is the document field being released (e.g. "bloodPressure").
//
// The pipeline's `let` bindings are resolved by the template engine before
// execution: "$patient_id", "$user_id" and "$attestation" are placeholder
// leaves validated and substituted by internal/template, per spec.md §4.4.
func BuildGetFieldPipeline(collection, authCollection, field string) bson.A {
	ownerExpr := bson.D{{Key: "$eq", Value: bson.A{"$_id", "$$userId"}}}

	authUserExpr := bson.D{{Key: "$first", Value: bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: "$auth.users"},
		{Key: "as", Value: "u"},
		{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$u.userId", "$$userId"}}}},
	}}}}}

	return bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: authCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "auth"},
		}}},
		bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$auth"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: field, Value: bson.D{{Key: "$let", Value: bson.D{
				{Key: "vars", Value: bson.D{
					{Key: "userId", Value: "$user_id"},
					{Key: "attestation", Value: "$attestation"},
				}},
				{Key: "in", Value: fieldReleaseExpr(ownerExpr, authUserExpr, "$"+field)},
			}}}},
		}}},
	}
}
