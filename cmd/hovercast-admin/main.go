package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/gateway"
	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/moderation"
	"github.com/hovercast/hovercast-coordinator/persistence"
	"github.com/hovercast/hovercast-coordinator/presence"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for the administration of hovercast rooms, users
// and bans.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	printJSON := func(v interface{}) {
		out, err := json.Marshal(v)
		if err != nil {
			globals.AppLogger.Error("could not marshal output", "error", err)
			return
		}
		fmt.Println(string(out))
	}
	argReader := func(arg string) io.Reader {
		if arg == "-" {
			return os.Stdin
		}
		return bytes.NewReader([]byte(arg))
	}

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms, users, bans or reports",
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all known rooms.`,
		Run: func(cmd *cobra.Command, args []string) {
			rooms, err := persister.GetRooms()
			if err != nil {
				globals.AppLogger.Error("could not get rooms", "error", err)
				return
			}
			printJSON(rooms)
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Show room",
		Long:  `show room prints the room with the given name, including its roster and moderator list.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{Name: args[0]}
			err := persister.GetRoom(&room)
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			printJSON(room)
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `show users lists all registered accounts.`,
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints the account with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := persister.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	var cmdShowBans = &cobra.Command{
		Use:   "bans",
		Short: "Show bans",
		Long:  `show bans lists all ban records, newest first.`,
		Run: func(cmd *cobra.Command, args []string) {
			bans, err := persister.GetBans()
			if err != nil {
				globals.AppLogger.Error("could not get bans", "error", err)
				return
			}
			printJSON(bans)
		},
	}

	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update room or user",
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room definition]",
		Short: "Set room",
		Long:  `set room creates or updates a room. If the room definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{}
			if err := json.NewDecoder(argReader(args[0])).Decode(&room); err != nil {
				globals.AppLogger.Error("could not decode room", "error", err)
				return
			}
			if room.Name == "" {
				globals.AppLogger.Error("no room name")
				return
			}
			if room.OwnerId != nil && *room.OwnerId != "" {
				owner := types.User{Id: *room.OwnerId}
				if err := persister.GetUser(&owner); err != nil {
					globals.AppLogger.Error("owner account does not exist", "owner", *room.OwnerId)
					return
				}
			}
			if err := persister.StoreRoom(room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates an account with the given definition. If the definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{}
			if err := json.NewDecoder(argReader(args[0])).Decode(&user); err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if user.Id == "" {
				globals.AppLogger.Error("no user id")
				return
			}
			if err := persister.StoreUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}

	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete room or user",
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given name including its roster and moderator list.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{Name: args[0]}
			if err := persister.DeleteRoom(&room); err != nil {
				globals.AppLogger.Error("could not delete room", "error", err)
				return
			}
		},
	}
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Delete user",
		Long:  `delete user removes the account with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			if err := persister.DeleteUser(&user); err != nil {
				globals.AppLogger.Error("could not delete user", "error", err)
				return
			}
		},
	}

	var cmdMod = &cobra.Command{
		Use:   "mod",
		Short: "manage room moderators",
	}
	var cmdModAdd = &cobra.Command{
		Use:   "add [room name] [account id]",
		Short: "Appoint a moderator",
		Long:  `mod add appoints the given account as a full moderator of the room, on behalf of the room owner.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{Name: args[0]}
			if err := persister.GetRoom(&room); err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			accountId := args[1]
			entry := types.ModeratorEntry{
				RoomName:   room.Name,
				AccountId:  &accountId,
				AssignedBy: room.OwnerId,
			}
			if err := persister.AddModerator(&entry); err != nil {
				globals.AppLogger.Error("could not add moderator", "error", err)
				return
			}
		},
	}
	var cmdModRemove = &cobra.Command{
		Use:   "remove [room name] [account id]",
		Short: "Remove a moderator",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			id := types.AccountIdentity(args[1], "", "", "")
			if err := persister.RemoveModerator(args[0], id); err != nil {
				globals.AppLogger.Error("could not remove moderator", "error", err)
				return
			}
		},
	}

	var cmdBan = &cobra.Command{
		Use:   "ban [ban request]",
		Short: "Create a site ban",
		Long:  `ban creates a site ban from the given request definition. If the definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			req := moderation.BanRequest{}
			if err := json.NewDecoder(argReader(args[0])).Decode(&req); err != nil {
				globals.AppLogger.Error("could not decode ban request", "error", err)
				return
			}
			presenceStore, err := presence.NewStore(globalConfig)
			if err != nil {
				globals.AppLogger.Error("could not open presence store", "error", err)
				return
			}
			defer presenceStore.Close()
			svc := &moderation.Service{
				Store:    persister,
				Presence: presenceStore,
				Gateway:  gateway.NewAdminClient(globalConfig.GatewayConfig),
				Sessions: noSessions{},
				Logger:   globals.AppLogger,
				Cfg:      globalConfig,
			}
			if _, err := svc.SiteBan(req, nil); err != nil {
				globals.AppLogger.Error("could not create ban", "error", err)
				return
			}
		},
	}

	var cmdResolve = &cobra.Command{
		Use:   "resolve [report id] [resolved by]",
		Short: "Resolve a report",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := persister.ResolveReport(args[0], args[1]); err != nil {
				globals.AppLogger.Error("could not resolve report", "error", err)
				return
			}
		},
	}

	var rootCmd = &cobra.Command{Use: "hovercast-admin"}
	rootCmd.AddCommand(cmdShow, cmdSet, cmdDelete, cmdMod, cmdBan, cmdResolve)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowUsers, cmdShowUser, cmdShowBans)
	cmdSet.AddCommand(cmdSetRoom, cmdSetUser)
	cmdDelete.AddCommand(cmdDeleteRoom, cmdDeleteUser)
	cmdMod.AddCommand(cmdModAdd, cmdModRemove)
	rootCmd.Execute()
}

// noSessions is used where no live transport exists; a ban created from
// the CLI cannot invalidate an in-memory session of a running server.
type noSessions struct{}

func (noSessions) Invalidate(string) {}
