package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/arena/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.MirrorDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.SyncWorkers, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.SyncQueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.MirrorTimeout, convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.PercentageScale, convey.ShouldEqual, 10)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs the service cannot run with", t, func() {
		convey.Convey("A sqlite store without a path is rejected", func() {
			cfg := config.New()
			cfg.StoreDriver = config.DriverSQLite
			cfg.SQLitePath = ""
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "sqlite_path")
		})

		convey.Convey("A rest mirror without a url is rejected", func() {
			cfg := config.New()
			cfg.MirrorDriver = config.DriverREST
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "mirror_url")
		})

		convey.Convey("Unknown drivers and non-positive sizes are all reported", func() {
			cfg := config.New()
			cfg.StoreDriver = "postgres"
			cfg.MirrorDriver = "kafka"
			cfg.SyncWorkers = 0
			cfg.PercentageScale = -1
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, `unknown store_driver "postgres"`)
			convey.So(err.Error(), convey.ShouldContainSubstring, `unknown mirror_driver "kafka"`)
			convey.So(err.Error(), convey.ShouldContainSubstring, "sync_workers must be positive")
			convey.So(err.Error(), convey.ShouldContainSubstring, "percentage_scale must be positive")
		})
	})
}
