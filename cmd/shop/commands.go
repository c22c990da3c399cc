package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/guard"
	"tiketloka-storefront/internal/service/admins"
	"tiketloka-storefront/internal/service/cart"
	"tiketloka-storefront/internal/service/session"
)

type command struct {
	run func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":           {run: runLogin},
		"register":        {run: runRegister},
		"logout":          {run: runLogout},
		"whoami":          {run: runWhoami},
		"forgot-password": {run: runForgotPassword},
		"reset-password":  {run: runResetPassword},
		"cart":            {run: runCart},
		"select":          {run: runSelect},
		"checkout":        {run: runCheckout},
		"ticket":          {run: runTicket},
		"admin":           {run: runAdmin},
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (or SHOP_PASSWORD)")
	googleCode := fs.String("google-code", "", "authorization code from the Google sign-in redirect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		id  domain.Identity
		err error
	)
	if *googleCode != "" {
		id, err = a.accounts.CompleteOAuth(ctx, "google", *googleCode)
	} else {
		pw := *password
		if pw == "" {
			pw = os.Getenv("SHOP_PASSWORD")
		}
		id, err = a.accounts.Login(ctx, *email, pw)
	}
	if err != nil {
		return err
	}
	a.printf("signed in as %s\n", describe(id))
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("register")
	var in session.SignupInput
	fs.StringVar(&in.Name, "name", "", "full name")
	fs.StringVar(&in.Email, "email", "", "email")
	fs.StringVar(&in.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&in.Password, "password", "", "password, at least 8 characters")
	fs.StringVar(&in.PasswordConfirmation, "confirm", "", "password confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.accounts.Signup(ctx, in)
	if err != nil {
		return err
	}
	a.printf("account created, signed in as %s\n", describe(id))
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	a.session.Logout(ctx)
	a.printf("signed out\n")
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("whoami")
	refresh := fs.Bool("refresh", false, "re-read role and profile from the backend")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refresh {
		if err := a.session.Refresh(ctx); err != nil && !errors.Is(err, domain.ErrUnauthenticated) {
			return err
		}
	}
	a.printf("%s\n", describe(a.session.Identity()))
	return nil
}

func runForgotPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("forgot-password")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.accounts.ForgotPassword(ctx, *email); err != nil {
		return err
	}
	a.printf("if the account exists, a reset link is on its way\n")
	return nil
}

func runResetPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reset-password")
	token := fs.String("token", "", "reset token from the email")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "new password")
	confirm := fs.String("confirm", "", "password confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.accounts.ResetPassword(ctx, *token, *email, *password, *confirm); err != nil {
		return err
	}
	a.printf("password updated, sign in again\n")
	return nil
}

func runCart(ctx context.Context, a *app, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		v, err := a.cart.Load(ctx)
		if err != nil {
			return err
		}
		a.printCart(v)
		return nil
	case "add":
		return runCartAdd(ctx, a, args)
	case "update":
		return runCartUpdate(ctx, a, args)
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: cart remove <line-id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := loadThen(ctx, a, func() error { return a.cart.Remove(ctx, id) }); err != nil {
			return err
		}
		a.printf("removed line %d\n", id)
		return nil
	case "clear":
		if err := loadThen(ctx, a, func() error { return a.cart.Clear(ctx) }); err != nil {
			return err
		}
		a.printf("cart cleared\n")
		return nil
	default:
		return fmt.Errorf("unknown cart command %q", sub)
	}
}

func runCartAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("cart add")
	dest := fs.Int64("destination", 0, "destination id")
	qty := fs.Int("qty", 1, "ticket quantity")
	date := fs.String("date", "", "visit date, YYYY-MM-DD")
	addons := fs.Int64Slice("addon", nil, "add-on id (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	visit, err := parseDate(*date)
	if err != nil {
		return err
	}
	item, err := a.cart.Add(ctx, cart.AddInput{
		Destination: domain.Destination{ID: *dest},
		Quantity:    *qty,
		VisitDate:   visit,
		AddonIDs:    *addons,
	})
	if err != nil {
		return err
	}
	a.printf("added line %d\n", item.ID)
	return nil
}

func runCartUpdate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("cart update")
	qty := fs.Int("qty", 0, "new quantity")
	date := fs.String("date", "", "new visit date, YYYY-MM-DD")
	addons := fs.Int64Slice("addons", nil, "replace add-ons (comma separated; empty to drop all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: cart update <line-id> [--qty N] [--date D] [--addons ids]")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	var patch cart.Patch
	if fs.Changed("qty") {
		patch.Quantity = qty
	}
	if fs.Changed("date") {
		visit, err := parseDate(*date)
		if err != nil {
			return err
		}
		patch.VisitDate = &visit
	}
	if fs.Changed("addons") {
		ids := append([]int64{}, (*addons)...)
		patch.AddonIDs = &ids
	}
	var item domain.CartLineItem
	err = loadThen(ctx, a, func() error {
		var err error
		item, err = a.cart.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return err
	}
	a.printf("updated line %d: %d x %s on %s\n", item.ID, item.Quantity, item.Destination.Name, item.VisitDate.Format(domain.DateLayout))
	return nil
}

func runSelect(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("select")
	all := fs.Bool("all", false, "select every line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.cart.Load(ctx); err != nil {
		return err
	}
	if err := selectLines(a, *all || fs.NArg() == 0, fs.Args()); err != nil {
		return err
	}
	a.printTotals(a.cart.View())
	return nil
}

func runCheckout(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("checkout")
	method := fs.String("method", "qris", "payment method: qris or bca")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.session.Token() == "" {
		return fmt.Errorf("%w: sign in with `shop login` first", domain.ErrUnauthenticated)
	}
	if _, err := a.cart.Load(ctx); err != nil {
		return err
	}
	if err := selectLines(a, fs.NArg() == 0, fs.Args()); err != nil {
		return err
	}
	booking, err := a.checkout.CheckoutSelection(ctx, *method)
	if err != nil {
		return err
	}
	a.printf("booking %s confirmed (%s) for lines %v\n", booking.Code, booking.PaymentMethod, booking.LineItemIDs)
	a.printf("view it with: shop ticket %s\n", booking.Code)
	return nil
}

func runTicket(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ticket <booking-code>")
	}
	token := a.session.Token()
	if token == "" {
		return domain.ErrUnauthenticated
	}
	b, err := a.api.Booking(ctx, token, args[0])
	if err != nil {
		return err
	}
	a.printf("booking %s  status %s  payment %s  total %s\n", b.Code, b.Status, b.PaymentMethod, rupiah(b.GrandTotal))
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKET\tDESTINATION\tDATE\tQTY")
	for _, t := range b.Tickets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.Code, t.Destination, t.VisitDate.Format(domain.DateLayout), t.Quantity)
	}
	return tw.Flush()
}

const adminUsage = "usage: admin dashboard [--from D] [--to D] | admin admins [list|add|update|remove]"

func runAdmin(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New(adminUsage)
	}
	switch args[0] {
	case "dashboard":
		return runDashboard(ctx, a, args[1:])
	case "admins":
		return runAdmins(ctx, a, args[1:])
	default:
		return errors.New(adminUsage)
	}
}

func runDashboard(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("admin dashboard")
	from := fs.String("from", "", "start date, YYYY-MM-DD")
	to := fs.String("to", "", "end date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := a.session.Identity()
	if err := guard.Authorize(id, guard.ViewAdmin); err != nil {
		return err
	}
	var start, end time.Time
	var err error
	if *from != "" {
		if start, err = parseDate(*from); err != nil {
			return err
		}
	}
	if *to != "" {
		if end, err = parseDate(*to); err != nil {
			return err
		}
	}
	stats, err := a.api.Dashboard(ctx, id.Token, start, end)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "revenue\t%s\n", rupiah(stats.TotalRevenue))
	fmt.Fprintf(tw, "bookings\t%d\n", stats.TotalBookings)
	fmt.Fprintf(tw, "tickets sold\t%d\n", stats.TotalTicketsSold)
	fmt.Fprintf(tw, "destinations\t%d\n", stats.TotalDestinations)
	return tw.Flush()
}

// runAdmins manages admin accounts; the service refuses anyone but the owner.
func runAdmins(ctx context.Context, a *app, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		list, err := a.admins.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			a.printf("no admins\n")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE")
		for _, p := range list {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Email, p.PhoneNumber)
		}
		return tw.Flush()
	case "add", "update":
		fs := newFlagSet("admin admins " + sub)
		var in admins.Input
		fs.StringVar(&in.Name, "name", "", "full name")
		fs.StringVar(&in.Email, "email", "", "login email")
		fs.StringVar(&in.PhoneNumber, "phone", "", "phone number")
		fs.StringVar(&in.Password, "password", "", "password (update: empty keeps the current one)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if sub == "add" {
			if err := a.admins.Create(ctx, in); err != nil {
				return err
			}
			a.printf("admin %s added\n", strings.ToLower(strings.TrimSpace(in.Email)))
			return nil
		}
		if fs.NArg() != 1 {
			return errors.New("usage: admin admins update <id> --name N --email E [--phone P] [--password P]")
		}
		id, err := parseID(fs.Arg(0))
		if err != nil {
			return err
		}
		if err := a.admins.Update(ctx, id, in); err != nil {
			return err
		}
		a.printf("admin %d updated\n", id)
		return nil
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: admin admins remove <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := a.admins.Remove(ctx, id); err != nil {
			return err
		}
		a.printf("admin %d removed\n", id)
		return nil
	default:
		return fmt.Errorf("unknown admins command %q", sub)
	}
}

// loadThen makes sure the cart is loaded before a mutation that names an
// existing line.
func loadThen(ctx context.Context, a *app, fn func() error) error {
	if _, err := a.cart.Load(ctx); err != nil {
		return err
	}
	return fn()
}

func selectLines(a *app, all bool, args []string) error {
	a.cart.ClearSelection()
	if all {
		a.cart.ToggleAll()
		return nil
	}
	for _, raw := range args {
		id, err := parseID(raw)
		if err != nil {
			return err
		}
		if !a.cart.Toggle(id) {
			return fmt.Errorf("line %d is not in the cart", id)
		}
	}
	return nil
}

func (a *app) printCart(v cart.View) {
	if len(v.Items) == 0 {
		a.printf("cart is empty\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDESTINATION\tDATE\tQTY\tADD-ONS\tTOTAL")
	for _, item := range v.Items {
		var names []string
		for _, addon := range item.SelectedAddons() {
			names = append(names, addon.Name)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", item.ID, item.Destination.Name,
			item.VisitDate.Format(domain.DateLayout), item.Quantity, strings.Join(names, ", "), rupiah(item.LineTotal()))
	}
	_ = tw.Flush()
	if v.Stale {
		a.printf("(offline: showing the last known cart)\n")
	}
}

func (a *app) printTotals(v cart.View) {
	t := v.Totals
	if len(t.Lines) == 0 {
		a.printf("nothing selected\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, line := range t.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%d x (%s + %s)\t%s\n", line.Item.ID, line.Item.Destination.Name,
			line.Item.Quantity, rupiah(line.Item.Destination.Price), rupiah(line.AddonUnit), rupiah(line.Total))
	}
	fmt.Fprintf(tw, "\t%d tickets\t\t%s\n", t.Quantity, rupiah(t.GrandTotal))
	_ = tw.Flush()
}

func describe(id domain.Identity) string {
	if !id.Authenticated() {
		return "anonymous"
	}
	if id.Profile == nil {
		return fmt.Sprintf("(%s)", id.Role)
	}
	return fmt.Sprintf("%s <%s> (%s)", id.Profile.Name, id.Profile.Email, id.Role)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid line id %q", raw)
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}

// rupiah formats an amount as "Rp 1.250.000".
func rupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "Rp " + b.String()
}
