package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/reparalab/taller/internal/service"
	"github.com/reparalab/taller/internal/store"
	"github.com/reparalab/taller/internal/ui"
)

var (
	registerClientID string
	registerName     string
	registerPhone    string
	registerEmail    string
	registerCategory string
	registerBrand    string
	registerModel    string
	registerSerial   string
	registerDesc     string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a repair order (new client or existing)",
	Long: `Register a piece of equipment for repair.

With no flags an interactive form collects the client and equipment
details. Passing --name (or --client) plus --category and --brand skips
the form, which is handy for scripts.

A registration is atomic: the client (unless --client points at an
existing one), the equipment, the order, and its opening event are
created together or not at all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		ctx := context.Background()
		svc := service.New(st)

		interactive := registerName == "" && registerClientID == ""
		if interactive {
			if err := runRegisterForm(); err != nil {
				return err
			}
		}

		ei := service.EquipmentInput{
			Category:    registerCategory,
			Brand:       registerBrand,
			Model:       registerModel,
			Serial:      registerSerial,
			Description: registerDesc,
		}

		var reg *store.Registration
		if registerClientID != "" {
			reg, err = svc.RegisterForClient(ctx, registerClientID, ei)
		} else {
			ci := service.ClientInput{
				Name:  registerName,
				Phone: registerPhone,
				Email: registerEmail,
			}
			reg, err = svc.RegisterOrder(ctx, ci, ei)
		}
		if err != nil {
			return fmt.Errorf("failed to register order: %w", err)
		}

		order := reg.Orders[0]
		fmt.Printf("%s Created order %s (%s)\n",
			ui.RenderPass("✓"), ui.RenderAccent(order.Code), order.ID)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerClientID, "client", "", "existing client id (skips client creation)")
	registerCmd.Flags().StringVar(&registerName, "name", "", "client name")
	registerCmd.Flags().StringVar(&registerPhone, "phone", "", "client phone")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "client email")
	registerCmd.Flags().StringVar(&registerCategory, "category", "", "equipment category (e.g. laptop, consola)")
	registerCmd.Flags().StringVar(&registerBrand, "brand", "", "equipment brand")
	registerCmd.Flags().StringVar(&registerModel, "model", "", "equipment model")
	registerCmd.Flags().StringVar(&registerSerial, "serial", "", "equipment serial number")
	registerCmd.Flags().StringVar(&registerDesc, "problem", "", "reported problem description")
}

func runRegisterForm() error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Client name").
				Value(&registerName).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Phone").
				Value(&registerPhone),
			huh.NewInput().
				Title("Email").
				Value(&registerEmail),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Equipment category").
				Placeholder("laptop, consola, telefono...").
				Value(&registerCategory).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("category is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Brand").
				Value(&registerBrand),
			huh.NewInput().
				Title("Model").
				Value(&registerModel),
			huh.NewInput().
				Title("Serial number").
				Value(&registerSerial),
			huh.NewText().
				Title("Reported problem").
				Value(&registerDesc),
		),
	)
	return form.Run()
}
