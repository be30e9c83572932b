package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unitprice/internal/unitprice"
)

// fav command
var favCmd = &cobra.Command{
	Use:   "fav",
	Short: "Manage favorites",
}

var favAddCmd = &cobra.Command{
	Use:   "add ITEM",
	Short: "Save an item as a favorite",
	Long: `Save an item as a favorite.

ITEM uses the compare syntax: PRICE:QUANTITY[:COUNT], or PRICE:COUNT[:LABEL] with --labeled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		labeled, _ := cmd.Flags().GetBool("labeled")
		opts := favoriteOptions(cmd)

		mode := ""
		if labeled {
			mode = string(unitprice.ModeLabeled)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fav, err := a.FavoriteArg(cmd.Context(), mode, args[0], opts)
		if err != nil {
			return fmt.Errorf("saving favorite: %s", describe(err))
		}
		fmt.Printf("Saved favorite #%d (%s per unit)\n", fav.ID, num(fav.Item.UnitPrice))
		return nil
	},
}

var favEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Replace a favorite's tags, folder and note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid favorite id %q", args[0])
		}
		opts := favoriteOptions(cmd)

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fav, err := a.Organizer().UpdateFavorite(cmd.Context(), id, opts)
		if err != nil {
			return fmt.Errorf("updating favorite: %s", describe(err))
		}
		fmt.Printf("Updated favorite #%d\n", fav.ID)
		return nil
	},
}

// favoriteOptions reads the shared add/edit flags.
func favoriteOptions(cmd *cobra.Command) unitprice.FavoriteOptions {
	tags, _ := cmd.Flags().GetStringSlice("tag")
	folder, _ := cmd.Flags().GetString("folder")
	newFolder, _ := cmd.Flags().GetString("new-folder")
	note, _ := cmd.Flags().GetString("note")

	opts := unitprice.FavoriteOptions{Tags: tags, Note: note, NewFolderName: newFolder}
	if folder != "" {
		opts.FolderID = &folder
	}
	return opts
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites in a folder (root by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		search, _ := cmd.Flags().GetString("search")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var folderID *string
		if folder != "" {
			folderID = &folder
		}
		favs, err := a.Organizer().ListFavorites(cmd.Context(), folderID, search)
		if err != nil {
			return fmt.Errorf("listing favorites: %s", describe(err))
		}
		printFavorites(favs)
		return nil
	},
}

var favTagCmd = &cobra.Command{
	Use:   "tag TAG",
	Short: "List favorites carrying a tag, across all folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		favs, err := a.Organizer().FavoritesByTag(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("listing favorites: %s", describe(err))
		}
		printFavorites(favs)
		return nil
	},
}

var favDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid favorite id %q", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Organizer().Unfavorite(cmd.Context(), id); err != nil {
			return fmt.Errorf("deleting favorite: %s", describe(err))
		}
		fmt.Printf("Deleted favorite #%d\n", id)
		return nil
	},
}

func printFavorites(favs []*unitprice.Favorite) {
	if len(favs) == 0 {
		fmt.Println("No favorites.")
		return
	}
	for _, f := range favs {
		folder := "-"
		if f.FolderID != nil {
			folder = *f.FolderID
		}
		fmt.Printf("#%-4d  %s / %s = %s per unit  folder:%s  tags:[%s]  %s\n",
			f.ID,
			num(f.Item.Price),
			num(f.Item.TotalAmount),
			num(f.Item.UnitPrice),
			folder,
			strings.Join(f.Tags, ","),
			f.Note,
		)
	}
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage favorite folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		icon, _ := cmd.Flags().GetString("icon")
		color, _ := cmd.Flags().GetString("color")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.Organizer().CreateFolderWithStyle(cmd.Context(), args[0], icon, color)
		if err != nil {
			return fmt.Errorf("creating folder: %s", describe(err))
		}
		fmt.Printf("Created folder %s (%s)\n", f.Name, f.ID)
		return nil
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		folders, err := a.Organizer().ListFolders(cmd.Context(), search)
		if err != nil {
			return fmt.Errorf("listing folders: %s", describe(err))
		}
		if len(folders) == 0 {
			fmt.Println("No folders.")
			return nil
		}
		for _, f := range folders {
			fmt.Printf("%s  %-20s  %s %s\n", f.ID, f.Name, f.Icon, f.Color)
		}
		return nil
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Organizer().RenameFolder(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("renaming folder: %s", describe(err))
		}
		fmt.Printf("Renamed %s to %s\n", args[0], args[1])
		return nil
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a folder and move its favorites to the root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Organizer().DeleteFolder(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting folder: %s", describe(err))
		}
		fmt.Printf("Deleted folder %s\n", args[0])
		return nil
	},
}

func init() {
	favCmd.AddCommand(favAddCmd)
	favCmd.AddCommand(favListCmd)
	favCmd.AddCommand(favTagCmd)
	favCmd.AddCommand(favDeleteCmd)
	favCmd.AddCommand(favEditCmd)
	favAddCmd.Flags().BoolP("labeled", "l", false, "Parse ITEM as PRICE:COUNT[:LABEL]")
	for _, c := range []*cobra.Command{favAddCmd, favEditCmd} {
		c.Flags().StringSliceP("tag", "t", nil, "Tag to attach (repeatable)")
		c.Flags().String("folder", "", "Folder ID to file the favorite under")
		c.Flags().String("new-folder", "", "Create a folder with this name and file the favorite under it")
		c.Flags().String("note", "", "Free-text note")
	}
	favListCmd.Flags().String("folder", "", "Folder ID (root when empty)")
	favListCmd.Flags().StringP("search", "s", "", "Match tags, note or price")

	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderDeleteCmd)
	folderCreateCmd.Flags().String("icon", "", "Icon name")
	folderCreateCmd.Flags().String("color", "", "Color name")
	folderListCmd.Flags().StringP("search", "s", "", "Match folder names, ignoring case")
}
