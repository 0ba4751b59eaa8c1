package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/ewelink-switches/internal/pkg/logging"
	"github.com/jake-scott/ewelink-switches/pkg/cloudreg"
	"github.com/jake-scott/ewelink-switches/pkg/switchctl"

	// registers the "sim" registry driver
	_ "github.com/jake-scott/ewelink-switches/pkg/simreg"
)

var _switchesCmdOpts struct {
	identity     string
	secret       string
	region       string
	driverName   string
	driverSource string
	startupGrace time.Duration
	asJSON       bool
}

var switchesCmd = &cobra.Command{
	Use:   "switches",
	Short: "Inspect and control the account's switch devices",
}

var switchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Discover and list switch-capable devices",

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *switchctl.Controller) error {
			return doList(ctx, ctrl)
		})
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("cloud.identity", "cloud.secret", "registry.source")
	},
}

var switchesOnCmd = &cobra.Command{
	Use:   "on <deviceid>",
	Short: "Turn a switch device on",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *switchctl.Controller) error {
			return doSet(ctx, ctrl, args[0], cloudreg.SwitchStateOn)
		})
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("cloud.identity", "cloud.secret", "registry.source")
	},
}

var switchesOffCmd = &cobra.Command{
	Use:   "off <deviceid>",
	Short: "Turn a switch device off",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctx context.Context, ctrl *switchctl.Controller) error {
			return doSet(ctx, ctrl, args[0], cloudreg.SwitchStateOff)
		})
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("cloud.identity", "cloud.secret", "registry.source")
	},
}

func init() {
	switchesCmd.PersistentFlags().StringVar(&_switchesCmdOpts.identity, "identity", "", "cloud account identity (email or phone number)")
	switchesCmd.PersistentFlags().StringVar(&_switchesCmdOpts.secret, "secret", "", "cloud account secret")
	switchesCmd.PersistentFlags().StringVar(&_switchesCmdOpts.region, "region", switchctl.DefaultRegionHint, "account region hint, eg. +1 or +44")
	switchesCmd.PersistentFlags().StringVar(&_switchesCmdOpts.driverName, "driver", "sim", "registry driver to use")
	switchesCmd.PersistentFlags().StringVar(&_switchesCmdOpts.driverSource, "fixtures", "", "registry driver source (fixture file for the sim driver)")
	switchesCmd.PersistentFlags().DurationVar(&_switchesCmdOpts.startupGrace, "startup-grace", switchctl.DefaultStartupGrace, "how long to allow the command channel to establish, eg. 2s")
	switchesCmd.PersistentFlags().BoolVar(&_switchesCmdOpts.asJSON, "json", false, "produce JSON output")

	errPanic(viper.GetViper().BindPFlag("cloud.identity", switchesCmd.PersistentFlags().Lookup("identity")))
	errPanic(viper.GetViper().BindPFlag("cloud.secret", switchesCmd.PersistentFlags().Lookup("secret")))
	errPanic(viper.GetViper().BindPFlag("cloud.region", switchesCmd.PersistentFlags().Lookup("region")))
	errPanic(viper.GetViper().BindPFlag("registry.driver", switchesCmd.PersistentFlags().Lookup("driver")))
	errPanic(viper.GetViper().BindPFlag("registry.source", switchesCmd.PersistentFlags().Lookup("fixtures")))
	errPanic(viper.GetViper().BindPFlag("registry.startup-grace", switchesCmd.PersistentFlags().Lookup("startup-grace")))
	errPanic(viper.GetViper().BindPFlag("output.json", switchesCmd.PersistentFlags().Lookup("json")))

	switchesCmd.AddCommand(switchesListCmd)
	switchesCmd.AddCommand(switchesOnCmd)
	switchesCmd.AddCommand(switchesOffCmd)
	rootCmd.AddCommand(switchesCmd)
}

// withController runs fn inside a full login/work/close lifecycle so the
// session and channel task are released on every exit path.
func withController(fn func(ctx context.Context, ctrl *switchctl.Controller) error) error {
	driver, err := cloudreg.Open(viper.GetString("registry.driver"), viper.GetString("registry.source"))
	if err != nil {
		return err
	}

	ctrl := switchctl.New(driver).WithStartupGrace(viper.GetDuration("registry.startup-grace"))

	ctx := context.Background()
	if err := ctrl.Login(ctx, viper.GetString("cloud.identity"), viper.GetString("cloud.secret"), viper.GetString("cloud.region")); err != nil {
		return err
	}

	defer func() {
		if err := ctrl.Close(ctx); err != nil {
			logging.Logger(nil).WithError(err).Error("closing controller")
		}
	}()

	return fn(ctx, ctrl)
}

func doList(ctx context.Context, ctrl *switchctl.Controller) error {
	devices, err := ctrl.DiscoverSwitches(ctx)
	if err != nil {
		return err
	}

	if viper.GetBool("output.json") {
		b, err := json.MarshalIndent(devices, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	fmt.Printf("%-12s %-24s %-8s %s\n", "DEVICEID", "NAME", "ONLINE", "SWITCH")
	for _, d := range devices {
		state := "-"
		if s, ok := d.Params.Switch(); ok {
			state = s
		}
		fmt.Printf("%-12s %-24s %-8t %s\n", d.ID, d.Name, d.Online, state)
	}

	return nil
}

func doSet(ctx context.Context, ctrl *switchctl.Controller, deviceID string, state cloudreg.SwitchState) error {
	if _, err := ctrl.DiscoverSwitches(ctx); err != nil {
		return err
	}

	var status cloudreg.Status
	var err error
	if state == cloudreg.SwitchStateOn {
		status, err = ctrl.TurnOn(ctx, deviceID)
	} else {
		status, err = ctrl.TurnOff(ctx, deviceID)
	}
	if err != nil {
		return err
	}

	if viper.GetBool("output.json") {
		b, err := json.Marshal(struct {
			DeviceID string `json:"deviceid"`
			Switch   string `json:"switch"`
			Status   string `json:"status"`
		}{deviceID, string(state), string(status)})
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	} else {
		fmt.Printf("%s: %s\n", deviceID, status)
	}

	// the status token is the authoritative outcome of the call
	if status.IsLocalError() {
		return fmt.Errorf("command not delivered: %s", status)
	}

	return nil
}
