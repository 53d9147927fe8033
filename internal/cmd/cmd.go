package cmd

import (
	"log/slog"

	"hvac-bridge/internal/cmd/serve"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "hvac-bridge",
		Short: "Bridge between cloud HVAC providers and the home network",
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&serve.Cmd)
}

var args = charmer.Arguments{
	"debug":             charmer.Argument{Default: false, Help: "Log debug messages"},
	"sim-mode":          charmer.Argument{Default: false, Help: "Run against canned data, no provider calls"},
	"database.path":     charmer.Argument{Default: "hvac-bridge.db", Help: "Path of the SQLite database"},
	"rooms.path":        charmer.Argument{Default: "rooms.yaml", Help: "Path of the rooms registry"},
	"tado.home_id":      charmer.Argument{Default: "", Help: "Tadoº home id"},
	"melcloud.email":    charmer.Argument{Default: "", Help: "MELCloud account email"},
	"melcloud.password": charmer.Argument{Default: "", Help: "MELCloud account password"},
	"weather.latitude":  charmer.Argument{Default: 0.0, Help: "Latitude for weather lookups"},
	"weather.longitude": charmer.Argument{Default: 0.0, Help: "Longitude for weather lookups"},
	"server.addr":       charmer.Argument{Default: ":8080", Help: "Address of the API server"},
	"prometheus.addr":   charmer.Argument{Default: ":9090", Help: "Address of the Prometheus endpoint"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/hvac-bridge/")
		viper.AddConfigPath("$HOME/.hvac-bridge")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("HVAC_BRIDGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Warn("no config file found, running on defaults", "err", err)
	}
}
