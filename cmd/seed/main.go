// cmd/seed populates a document store with fixture users, patient records,
// and authorization documents matching spec.md §8's end-to-end scenarios.
// It is an out-of-band utility (spec.md §1 "user/pipeline seeding
// utilities"), not part of the attested protocol core.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/virtengine/vericare/internal/auth"
	"github.com/virtengine/vericare/internal/authz"
	"github.com/virtengine/vericare/internal/config"
	"github.com/virtengine/vericare/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "seed",
		Short: "Populates fixture users, patients, and authorizations",
		RunE:  run,
	}
	root.Flags().String("mongo_uri", "mongodb://localhost:27017", "document store URI")
	root.Flags().String("mongo_database", "vericare", "document store database name")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return err
	}
	uri := v.GetString("mongo_uri")
	db := v.GetString("mongo_database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	docs, err := store.Connect(ctx, uri, db, zerolog.New(os.Stdout).With().Timestamp().Logger())
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer docs.Close(ctx)

	patientID := mustHex("111111111111111111111111")
	doctorID := mustHex("000000000000000000000000")
	externalUserID := bson.NewObjectID()

	patientHash, err := auth.HashPassword("patient-password")
	if err != nil {
		return err
	}
	doctorHash, err := auth.HashPassword("doctor-password")
	if err != nil {
		return err
	}
	externalHash, err := auth.HashPassword("external-password")
	if err != nil {
		return err
	}

	users := []bson.M{
		{"_id": patientID, "username": "patient", "passwordHash": patientHash},
		{"_id": doctorID, "username": "doctor", "passwordHash": doctorHash},
		{"_id": externalUserID, "username": "external", "passwordHash": externalHash},
	}
	for _, u := range users {
		if err := docs.InsertOne(ctx, "users", u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	}

	if err := docs.InsertOne(ctx, "patients", bson.M{
		"_id":           patientID,
		"bloodPressure": 100.0,
	}); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}

	expiration := time.Now().Add(24 * time.Hour)
	authDoc := authz.Document{
		ID: patientID,
		Users: []authz.Grant{
			authz.NewGrant(doctorID, expiration, authz.PermissionRead),
			authz.NewGrant(externalUserID, expiration, authz.PermissionEnclave),
		},
	}
	if err := docs.InsertOne(ctx, "authorizations", authDoc); err != nil {
		return fmt.Errorf("insert authorization: %w", err)
	}

	if err := docs.InsertOne(ctx, "populationStats", bson.M{"field": "bloodPressure", "mean": 95.0}); err != nil {
		return fmt.Errorf("insert population stats: %w", err)
	}

	fmt.Println("seeded fixture data")
	return nil
}

func mustHex(hex string) bson.ObjectID {
	oid, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		panic(err)
	}
	return oid
}
