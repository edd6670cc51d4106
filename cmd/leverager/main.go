package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leverager/internal/bootstrap"
	"leverager/pkg/cli"

	"github.com/shopspring/decimal"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: leverager [flags] [command]

Commands:
  run                 run the keeper loops until interrupted (default)
  deposit <amount>    deposit base asset and build leverage
  withdraw <amount>   withdraw part of the principal
  withdraw all        unwind and withdraw everything
  rebalance           steer the position back to the target LTV
  adjust <ltv_bps>    propose a new target LTV (takes effect after the governance delay)
  deleverage          emergency unwind to zero debt
  compound            claim pending rewards and fold them into the position
  status              print the current position

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "configs/leverager.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("leverager version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	command := "run"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if err := dispatch(ctx, app, command, flag.Args()); err != nil {
		app.Logger.Error("Command failed", "command", command, "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
	os.Exit(exitCode)
}

func dispatch(ctx context.Context, app *bootstrap.App, command string, args []string) error {
	eng := app.Engine

	switch command {
	case "run":
		app.Start(ctx)
		<-ctx.Done()
		return nil

	case "deposit":
		if len(args) < 2 {
			return fmt.Errorf("deposit requires an amount")
		}
		amount, err := cli.ParseAmount(args[1])
		if err != nil {
			return err
		}
		deposited, err := eng.Deposit(ctx, amount)
		if err != nil {
			return err
		}
		app.Logger.Info("Deposit complete", "amount", deposited.String())
		return nil

	case "withdraw":
		if len(args) < 2 {
			return fmt.Errorf("withdraw requires an amount or 'all'")
		}
		var freed decimal.Decimal
		var err error
		if args[1] == "all" {
			freed, err = eng.WithdrawAll(ctx)
		} else {
			var amount decimal.Decimal
			if amount, err = cli.ParseAmount(args[1]); err != nil {
				return err
			}
			freed, err = eng.Withdraw(ctx, amount)
		}
		if err != nil {
			return err
		}
		app.Logger.Info("Withdrawal complete", "freed", freed.String())
		return nil

	case "rebalance":
		if err := eng.Rebalance(ctx); err != nil {
			return err
		}
		app.Logger.Info("Rebalance complete")
		return nil

	case "adjust":
		if len(args) < 2 {
			return fmt.Errorf("adjust requires a target LTV in basis points")
		}
		target, err := cli.ParseBps(args[1])
		if err != nil {
			return err
		}
		change, err := eng.ProposeTargetLtv(target)
		if err != nil {
			return err
		}
		app.Logger.Info("Target LTV change proposed",
			"target_ltv_bps", target,
			"eligible_at", change.EligibleAt.Format(time.RFC3339))
		return nil

	case "deleverage":
		freed, err := eng.EmergencyDeleverage(ctx)
		if err != nil {
			return err
		}
		app.Logger.Info("Emergency deleverage complete", "freed", freed.String())
		return nil

	case "compound":
		if app.Compounder == nil {
			return fmt.Errorf("reward compounding is disabled in the configuration")
		}
		compounded, err := app.Compounder.CompoundOnce(ctx)
		if err != nil {
			return err
		}
		app.Logger.Info("Compound complete", "amount", compounded.String())
		return nil

	case "status":
		view, err := eng.GetPosition(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("venue:          %s\n", eng.VenueName())
		fmt.Printf("active:         %v\n", view.Active)
		fmt.Printf("principal:      %s\n", view.Principal)
		fmt.Printf("collateral:     %s\n", view.Collateral)
		fmt.Printf("debt:           %s\n", view.Debt)
		fmt.Printf("ltv_bps:        %d (target %d)\n", view.LtvBps, view.TargetLtvBps)
		fmt.Printf("health_factor:  %s\n", view.HealthFactor)
		fmt.Printf("share_price:    %s\n", view.SharePrice)
		return nil

	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}
