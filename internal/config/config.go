// Package config wires Viper to the CLI flags and resolves Settings.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"yt2qt/internal/dirs"
	"yt2qt/internal/model"
)

// Init wires Viper with config paths, env, defaults, and flag bindings.
// It is non-fatal: any errors are returned for optional handling by caller.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	if cfgDir, err := dirs.ConfigDir(); err == nil {
		_ = dirs.Ensure(cfgDir)
		viper.AddConfigPath(cfgDir)
	}
	viper.SetConfigName("config") // supports config.{yaml|yml|json|toml}

	// Environment variables: YT2QT_*
	viper.SetEnvPrefix("YT2QT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("encoder", "gpu")
	viper.SetDefault("bitrate_preset", "8M")
	viper.SetDefault("max_resolution", "No limit")
	viper.SetDefault("prefer_h264", true)

	// Bind root persistent flags to Viper keys
	_ = viper.BindPFlag("out_dir", root.PersistentFlags().Lookup("out-dir"))
	_ = viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("ytdlp_binary", root.PersistentFlags().Lookup("ytdlp-binary"))
	_ = viper.BindPFlag("ffmpeg_binary", root.PersistentFlags().Lookup("ffmpeg-binary"))

	// Read config file if present (ignore not found)
	_ = viper.ReadInConfig()

	return nil
}

// Load resolves the effective Settings from flags, environment, config
// file, and defaults, in Viper's usual precedence order.
func Load() (model.Settings, error) {
	enc, err := model.ParseEncoderKind(viper.GetString("encoder"))
	if err != nil {
		return model.Settings{}, err
	}

	outDir := viper.GetString("out_dir")
	if outDir == "" {
		outDir, err = dirs.DefaultOutputDir()
		if err != nil {
			return model.Settings{}, err
		}
	}

	return model.Settings{
		OutDir:        outDir,
		Encoder:       enc,
		BitratePreset: viper.GetString("bitrate_preset"),
		MaxResolution: viper.GetString("max_resolution"),
		Favorites:     viper.GetStringMapString("favorites"),
		AudioOnly:     viper.GetBool("audio_only"),
		KeepRaw:       viper.GetBool("keep_raw"),
		SimpleMode:    viper.GetBool("simple_mode"),
		PreferH264:    viper.GetBool("prefer_h264"),
		YTDLPBinary:   viper.GetString("ytdlp_binary"),
		FFmpegBinary:  viper.GetString("ffmpeg_binary"),
		Verbose:       viper.GetBool("verbose"),
	}, nil
}
