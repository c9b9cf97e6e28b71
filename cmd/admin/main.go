package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"jobportal/internal/auth"
	"jobportal/internal/config"
	"jobportal/internal/database"
	"jobportal/internal/users"
)

// dbFlags 覆盖环境变量中的数据库连接参数。
type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslmode  string
}

var (
	flags dbFlags

	rootCmd = &cobra.Command{
		Use:           "admin",
		Short:         "Job portal maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	createAdminCmd = &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account with a random password",
		Long: `Create an admin account and print its generated password once.

The password satisfies the registration policy and is never stored in clear text.`,
		RunE: runCreateAdmin,
	}

	seedShowcaseCmd = &cobra.Command{
		Use:   "seed-showcase",
		Short: "Attach demo images to an account so the showcase is not empty",
		Long: `Attach the demo image list to an employee account.

The account is created with the given password when it does not exist. Images
already on the account are kept; only missing demo entries are appended.`,
		RunE: runSeedShowcase,
	}
)

// demoImages are placeholders; the files themselves are expected under the images dir.
var demoImages = []database.Image{
	{Name: "Company Office", Path: "sample-office.jpg"},
	{Name: "Team Meeting", Path: "sample-team.jpg"},
	{Name: "Product Launch", Path: "sample-product.jpg"},
	{Name: "Company Event", Path: "sample-event.jpg"},
	{Name: "Workspace", Path: "sample-workspace.jpg"},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&flags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&flags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&flags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&flags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&flags.sslmode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	createAdminCmd.Flags().String("email", "", "管理员邮箱（必填）")
	createAdminCmd.Flags().String("name", "Administrator", "管理员姓名")
	_ = createAdminCmd.MarkFlagRequired("email")

	seedShowcaseCmd.Flags().String("email", "employee@northeastern.edu", "接收示例图片的账号")
	seedShowcaseCmd.Flags().String("name", "Demo Company", "账号不存在时使用的姓名")
	seedShowcaseCmd.Flags().String("password", "Company@123", "账号不存在时使用的密码")

	rootCmd.AddCommand(createAdminCmd, seedShowcaseCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openStore() (*users.Store, error) {
	dbCfg, err := loadDatabaseConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return users.NewStore(db), nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")

	email = users.NormalizeEmail(email)
	if !users.ValidEmail(email) {
		return fmt.Errorf("invalid email %q", email)
	}
	if !users.ValidFullName(name) {
		return fmt.Errorf("full name %q may contain letters and spaces only", name)
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	password, err := generateRandomPassword(18)
	if err != nil {
		return fmt.Errorf("generate password: %w", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := store.Create(cmd.Context(), users.NewUser{
		FullName:     name,
		Email:        email,
		PasswordHash: hashed,
		Role:         auth.RoleAdmin,
	}); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return fmt.Errorf("user %q already exists", email)
		}
		return fmt.Errorf("create user: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "已创建管理员账号：")
	fmt.Fprintf(out, "邮箱: %s\n", email)
	fmt.Fprintf(out, "初始密码: %s\n", password)
	fmt.Fprintln(out, "提示：该密码仅显示一次，请妥善保存。")
	return nil
}

func runSeedShowcase(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}

	user, err := store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		hashed, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		user, err = store.Create(ctx, users.NewUser{
			FullName:     name,
			Email:        email,
			PasswordHash: hashed,
			Role:         auth.RoleEmployee,
		})
		if err != nil {
			return fmt.Errorf("create showcase user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", user.Email)
	case err != nil:
		return fmt.Errorf("find showcase user: %w", err)
	}

	added := 0
	for _, img := range demoImages {
		if slices.ContainsFunc(user.Images, func(existing database.Image) bool { return existing.Path == img.Path }) {
			continue
		}
		if _, err := store.AppendImage(ctx, user.Email, img); err != nil {
			return fmt.Errorf("append %s: %w", img.Path, err)
		}
		added++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %d demo images to %s\n", added, user.Email)
	return nil
}

func loadDatabaseConfig(f dbFlags) (config.DatabaseConfig, error) {
	host, port, name, user, password, sslmode := f.host, f.port, f.name, f.user, f.password, f.sslmode
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// generateRandomPassword 生成满足注册口令规则的随机密码。
func generateRandomPassword(length int) (string, error) {
	if length <= 0 {
		length = 18
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	var sb strings.Builder
	for _, b := range buf {
		sb.WriteByte(passwordAlphabet[int(b)%len(passwordAlphabet)])
	}
	// random letters may miss a class; the suffix guarantees every class
	sb.WriteString("Aa1!")
	return sb.String(), nil
}
