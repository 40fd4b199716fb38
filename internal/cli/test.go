package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "发送一条测试消息，验证通知通道配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getApp().Test(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "test message sent")
		return nil
	},
}
