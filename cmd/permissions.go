package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/device"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

var requestPermissions bool

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Check screen and microphone capture permissions",
	Long: `Show whether the OS allows screen and microphone capture.

On systems that mediate capture consent, --request asks the OS to prompt the
user. Other systems report unknown because there is nothing to ask.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := device.NewManager(device.NewPlatform(), cfg.DeviceQueryTimeout, logger)

		var status models.PermissionStatus
		if requestPermissions {
			status = mgr.RequestPermissions(cmd.Context())
		} else {
			status = mgr.CheckPermissions(cmd.Context())
		}

		render := func(p models.Permission) string {
			switch p {
			case models.PermissionGranted:
				return lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Render("✓ granted")
			case models.PermissionDenied:
				return lipgloss.NewStyle().Foreground(lipgloss.Color("#E95420")).Render("✗ denied")
			}
			return lipgloss.NewStyle().Foreground(lipgloss.Color("#9A9EA0")).Render("○ unknown")
		}

		fmt.Printf("Platform:    %s %s\n", mgr.Platform().Name(), mgr.OSVersion(cmd.Context()))
		fmt.Printf("Screen:      %s\n", render(status.Screen))
		fmt.Printf("Microphone:  %s\n", render(status.Microphone))

		if status.Screen == models.PermissionDenied {
			fmt.Println()
			fmt.Println(models.Remediation(models.KindPermissionDenied))
		}
		return nil
	},
}

func init() {
	permissionsCmd.Flags().BoolVar(&requestPermissions, "request", false, "Ask the OS for consent")
}
