// Command policyctl is a CLI for inspecting and mutating a running
// policyd's store over its Unix socket.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coreauthz/policyd/config"
	"github.com/coreauthz/policyd/daemon"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "policyctl",
	Short: "policyctl inspects and mutates a running policyd",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if socketPath == "" {
			socketPath = config.LoadConfig().SocketPath
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "path to the policyd Unix socket (default: from config)")

	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(addBucketCmd())
	rootCmd.AddCommand(deleteBucketCmd())
	rootCmd.AddCommand(insertPolicyCmd())
	rootCmd.AddCommand(deletePolicyCmd())
	rootCmd.AddCommand(listPoliciesCmd())
	rootCmd.AddCommand(registerAgentCmd())
	rootCmd.AddCommand(unregisterAgentCmd())
	rootCmd.AddCommand(agentReplyCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dispatch sends one request over socketPath and returns policyd's reply.
func dispatch(req daemon.Request) (daemon.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return daemon.Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return daemon.Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp daemon.Response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return daemon.Response{}, fmt.Errorf("read response: %w", err)
		}
		return daemon.Response{}, fmt.Errorf("no response from policyd")
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return daemon.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func printResponse(resp daemon.Response) error {
	if !resp.OK {
		return fmt.Errorf("policyd: %s", resp.Error)
	}
	if len(resp.Data) == 0 {
		fmt.Println("ok")
		return nil
	}
	out, _ := json.MarshalIndent(resp.Data, "", "  ")
	fmt.Println(string(out))
	return nil
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <client> <user> <privilege>",
		Short: "Ask policyd to resolve a (client, user, privilege) query",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodCheck, Params: map[string]any{
				"client": args[0], "user": args[1], "privilege": args[2],
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	return cmd
}

func addBucketCmd() *cobra.Command {
	var typ int
	var metadata string
	cmd := &cobra.Command{
		Use:   "add-bucket <bucket-id>",
		Short: "Create or update a bucket's default result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodAddBucket, Params: map[string]any{
				"bucket_id": args[0], "type": float64(typ), "metadata": metadata,
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().IntVar(&typ, "type", 0x0000, "default result type (hex or decimal uint16)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "default result metadata")
	return cmd
}

func deleteBucketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-bucket <bucket-id>",
		Short: "Delete a bucket (cascades to policies that link to it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodDeleteBucket, Params: map[string]any{
				"bucket_id": args[0],
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	return cmd
}

func insertPolicyCmd() *cobra.Command {
	var bucketID, metadata string
	var typ int
	cmd := &cobra.Command{
		Use:   "insert-policy <client> <user> <privilege>",
		Short: "Insert or overwrite one policy in a bucket",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodInsertPolicies, Params: map[string]any{
				"bucket_id": bucketID, "client": args[0], "user": args[1], "privilege": args[2],
				"type": float64(typ), "metadata": metadata,
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&bucketID, "bucket", "", "target bucket id (default: root)")
	cmd.Flags().IntVar(&typ, "type", 0xFFFF, "result type (hex or decimal uint16, default ALLOW)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "result metadata")
	return cmd
}

func deletePolicyCmd() *cobra.Command {
	var bucketID string
	cmd := &cobra.Command{
		Use:   "delete-policy <client> <user> <privilege>",
		Short: "Delete one policy from a bucket",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodDeletePolicies, Params: map[string]any{
				"bucket_id": bucketID, "client": args[0], "user": args[1], "privilege": args[2],
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&bucketID, "bucket", "", "source bucket id (default: root)")
	return cmd
}

func listPoliciesCmd() *cobra.Command {
	var bucketID string
	cmd := &cobra.Command{
		Use:   "list-policies",
		Short: "List every policy in a bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodListPolicies, Params: map[string]any{
				"bucket_id": bucketID,
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&bucketID, "bucket", "", "bucket id to list (default: root)")
	return cmd
}

func registerAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-agent <type>",
		Short: "Register a plugin type as having an agent handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := strconv.ParseInt(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid type %q: %w", args[0], err)
			}
			resp, err := dispatch(daemon.Request{Method: daemon.MethodRegisterAgent, Params: map[string]any{
				"type": float64(typ),
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	return cmd
}

func unregisterAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unregister-agent <type>",
		Short: "Unregister a plugin type's agent handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := strconv.ParseInt(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid type %q: %w", args[0], err)
			}
			resp, err := dispatch(daemon.Request{Method: daemon.MethodUnregisterAgent, Params: map[string]any{
				"type": float64(typ),
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	return cmd
}

func agentReplyCmd() *cobra.Command {
	var isError bool
	cmd := &cobra.Command{
		Use:   "agent-reply <request-id> <ALLOW|DENY|BUCKET:id>",
		Short: "Deliver an agent plugin's reply for a deferred check",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := dispatch(daemon.Request{Method: daemon.MethodAgentReply, Params: map[string]any{
				"request_id": args[0], "text": args[1], "error": isError,
			}})
			if err != nil {
				return err
			}
			return printResponse(resp)
		},
	}
	cmd.Flags().BoolVar(&isError, "error", false, "deliver as an error result (decodes to DENY)")
	return cmd
}
