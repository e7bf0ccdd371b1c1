package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/licensegate/licensegate/internal/licensekey"
	"github.com/licensegate/licensegate/internal/model"
	"github.com/licensegate/licensegate/internal/repository"
)

type output struct {
	ID         string `json:"id"`
	Key        string `json:"license_key"`
	MaxDevices int    `json:"max_devices"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		key         = flag.String("key", "", "License key (generated when empty)")
		env         = flag.String("env", licensekey.EnvLive, "Generated key environment: live or test")
		maxDevices  = flag.Int("max-devices", 1, "Number of devices the license may be activated on")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *maxDevices < 0 {
		fmt.Fprintln(os.Stderr, "max-devices must not be negative")
		os.Exit(1)
	}

	licenseKey := strings.TrimSpace(*key)
	if licenseKey == "" {
		generated, err := licensekey.Generate(*env)
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate key:", err)
			os.Exit(1)
		}
		licenseKey = generated
	}
	if err := (model.ActivationRequest{LicenseKey: licenseKey, DeviceID: "-"}).Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid key:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, repository.PoolConfig{MaxConns: 1, MinConns: 1})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	now := time.Now().UTC()
	license := &model.License{
		ID:         ulid.Make().String(),
		Key:        licenseKey,
		MaxDevices: *maxDevices,
		Devices:    []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := repo.CreateLicense(ctx, license); err != nil {
		if errors.Is(err, repository.ErrLicenseExists) {
			fmt.Fprintf(os.Stderr, "license %q already exists\n", licenseKey)
		} else {
			fmt.Fprintln(os.Stderr, "create license:", err)
		}
		os.Exit(1)
	}

	out := output{ID: license.ID, Key: license.Key, MaxDevices: license.MaxDevices}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
