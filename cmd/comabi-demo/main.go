package main

import (
	"errors"
	"fmt"
	"os"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	comabi "github.com/osmiumlabs/comabi"
	"github.com/osmiumlabs/comabi/abi"
	"github.com/osmiumlabs/comabi/types"
)

// KeyStore fronts a key-value database across the boundary.
type KeyStore struct {
	comabi.Handle
	Set    func(key, value []byte) error
	Get    func(key []byte) ([]byte, error)
	Remove func(key []byte) error
}

var keyStoreID = types.ForceNewID("b1a97a4e-3d21-49e3-8e0f-8f1f0a6d2c55")

// This is just a demo to ensure the boundary machinery links into a static
// go binary. An optional config file (comabi.yaml) turns on debug checks and
// call tracing.
func main() {
	cfg := loadConfig()
	types.SetConfig(cfg)

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	types.SetLogger(logger)

	comabi.RegisterInterface[KeyStore](keyStoreID)

	db := dbm.NewMemDB()
	defer db.Close()

	impl := &KeyStore{}
	impl.Set = func(key, value []byte) error { return db.Set(key, value) }
	impl.Get = func(key []byte) ([]byte, error) { return db.Get(key) }
	impl.Remove = func(key []byte) error { return db.Delete(key) }

	obj, err := comabi.CCWForObject(impl)
	if err != nil {
		panic(err)
	}
	store, err := comabi.RCWForPointer[KeyStore](obj, true)
	if err != nil {
		panic(err)
	}

	if err := store.Set([]byte("greeting"), []byte("hello boundary")); err != nil {
		panic(err)
	}
	value, err := store.Get([]byte("greeting"))
	if err != nil {
		panic(err)
	}
	fmt.Printf("read back: %q\n", value)

	// Exporting the proxy again must short-circuit to the same call table.
	again, err := comabi.CCWForObject(store)
	if err != nil {
		panic(err)
	}
	fmt.Printf("round trip preserved identity: %v\n", again == obj)
	abi.Release(again)

	if err := store.Close(); err != nil {
		panic(err)
	}

	created, freed := abi.AllocStats()
	exported, live := comabi.ExportStats()
	fmt.Printf("buffers: %d created, %d freed\n", created, freed)
	fmt.Printf("exports: %d created, %d live\n", exported, live)
	fmt.Println("finished")
}

func loadConfig() types.Config {
	v := viper.New()
	v.SetConfigName("comabi")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("comabi")
	v.AutomaticEnv()
	defaults := types.DefaultConfig()
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("trace_calls", defaults.TraceCalls)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
