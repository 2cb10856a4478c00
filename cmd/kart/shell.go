package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/telemetry"
)

// Backend is the storefront API as the CLI uses it. *client.Client
// implements it.
type Backend interface {
	checkout.DiscountValidator
	checkout.OrderSubmitter
	checkout.PaymentGateway
	Product(ctx context.Context, id string) (*product.Product, error)
}

// Shell runs one CLI command against a basket store.
type Shell struct {
	out      io.Writer
	backend  Backend
	session  *Session
	store    *cart.Store
	migrator *cart.Migrator
	checkout *checkout.Orchestrator
	flow     *terminalFlow
}

// ShellOptions are the collaborators of a Shell.
type ShellOptions struct {
	In        io.Reader
	Out       io.Writer
	Backend   Backend
	Storage   cart.SnapshotStorage
	Policy    checkout.Policy
	Migration cart.Policy
	Sink      telemetry.Sink
	Now       func() time.Time
}

// NewShell wires the basket store, migration manager and checkout.
func NewShell(opts ShellOptions) *Shell {
	if opts.Sink == nil {
		opts.Sink = telemetry.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	// Under quota pressure the cached receipt goes before the basket does.
	store := cart.NewStore(opts.Storage, cart.WithSink(opts.Sink), cart.WithEvictable(checkout.ReceiptKey))
	flow := newTerminalFlow(opts.In, opts.Out)
	return &Shell{
		out:      opts.Out,
		backend:  opts.Backend,
		session:  NewSession(opts.Storage),
		store:    store,
		migrator: cart.NewMigrator(store, opts.Migration, opts.Sink),
		flow:     flow,
		checkout: checkout.New(store, checkout.Deps{
			Discounts: opts.Backend,
			Orders:    opts.Backend,
			Gateway:   opts.Backend,
			Flow:      flow,
			Receipts:  checkout.NewReceiptCache(opts.Storage),
			Sink:      opts.Sink,
		}, checkout.WithPolicy(opts.Policy), checkout.WithClock(opts.Now)),
	}
}

// Open resolves the session and loads the matching basket, migrating a
// guest basket when a user is signed in.
func (s *Shell) Open(ctx context.Context) error {
	if err := s.session.Resolve(ctx); err != nil {
		return err
	}
	return s.migrator.Sync(ctx, s.session)
}

// Run executes a command with its arguments.
func (s *Shell) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return s.add(ctx, rest)
	case "remove", "rm":
		return s.remove(ctx, rest)
	case "qty":
		return s.quantity(ctx, rest)
	case "show", "ls":
		return s.show()
	case "clear":
		s.store.Clear(ctx)
		return s.show()
	case "login":
		return s.login(ctx, rest)
	case "logout":
		return s.logout(ctx)
	case "apply":
		return s.apply(ctx, rest)
	case "checkout":
		return s.submit(ctx, "checkout", rest, "")
	case "pay":
		return s.submit(ctx, "pay", rest, checkout.PaymentOnline)
	case "receipt":
		return s.receipt(ctx, rest)
	default:
		return errors.Wrapf(errUsage, "unknown command %q", cmd)
	}
}

var errUsage = errors.New("usage: kart [-v] add|remove|qty|show|clear|login|logout|apply|checkout|pay|receipt")

type selection struct {
	line  int
	size  string
	color string
}

func (sel *selection) register(fs *flag.FlagSet, withLine bool) {
	fs.StringVar(&sel.size, "size", "", "size")
	fs.StringVar(&sel.color, "color", "", "colour")
	if withLine {
		fs.IntVar(&sel.line, "line", 0, "line number as printed by show")
	}
}

// key resolves the target line from -line or a product id with its
// selection.
func (sel selection) key(snap cart.State, args []string) (cart.Key, []string, error) {
	if sel.line > 0 {
		if sel.line > len(snap.Lines) {
			return "", args, errors.Errorf("no line %d, basket has %d", sel.line, len(snap.Lines))
		}
		return snap.Lines[sel.line-1].Key(), args, nil
	}
	if len(args) == 0 {
		return "", args, errors.New("product id or -line required")
	}
	return cart.ResolveKey(args[0], sel.size, sel.color), args[1:], nil
}

func (s *Shell) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var sel selection
	sel.register(fs, false)
	qty := fs.Int("qty", 1, "quantity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: kart add [-size S] [-color C] [-qty N] <productId>")
	}
	if *qty <= 0 || *qty > cart.MaxQuantity {
		return errors.Errorf("quantity must be between 1 and %d", cart.MaxQuantity)
	}
	p, err := s.backend.Product(ctx, fs.Arg(0))
	if err != nil {
		return errors.Wrap(err, "look up product")
	}
	if (sel.size != "" || sel.color != "") && p.HasVariants() {
		if _, ok := p.FindVariant(sel.size, sel.color); !ok {
			return errors.Errorf("%s has no variant %s/%s", p.ID, sel.size, sel.color)
		}
	}
	s.store.Add(ctx, cart.NewCandidate(p, sel.size, sel.color), *qty)
	return s.show()
}

func (s *Shell) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	var sel selection
	sel.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, _, err := sel.key(s.store.Snapshot(), fs.Args())
	if err != nil {
		return err
	}
	if _, ok := s.store.Snapshot().Find(key); !ok {
		return errors.Errorf("%s is not in the basket", key)
	}
	s.store.Remove(ctx, key)
	return s.show()
}

func (s *Shell) quantity(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("qty", flag.ContinueOnError)
	var sel selection
	sel.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, rest, err := sel.key(s.store.Snapshot(), fs.Args())
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errors.New("usage: kart qty [-line N | [-size S] [-color C] <productId>] <quantity>")
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil {
		return errors.Wrap(err, "parse quantity")
	}
	if n > cart.MaxQuantity {
		return errors.Errorf("quantity must be at most %d", cart.MaxQuantity)
	}
	if _, ok := s.store.Snapshot().Find(key); !ok {
		return errors.Errorf("%s is not in the basket", key)
	}
	s.store.SetQuantity(ctx, key, n)
	return s.show()
}

func (s *Shell) show() error {
	snap := s.store.Snapshot()
	who := "guest"
	if p := s.store.Principal(); !p.IsGuest() {
		who = p.UserID
	}
	if snap.IsEmpty() {
		_, err := fmt.Fprintf(s.out, "Basket (%s) is empty\n", who)
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Basket (%s)\n", who)
	fmt.Fprintln(tw, "#\tITEM\tVARIANT\tQTY\tPRICE\tSUBTOTAL")
	for i, l := range snap.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			i+1, l.Name, variantLabel(l), l.Quantity, l.UnitPrice.StringFixed(2), l.Subtotal().StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return s.printTotals(s.checkout.Totals())
}

func variantLabel(l cart.Line) string {
	parts := make([]string, 0, 2)
	for _, v := range []string{l.Size, l.Color} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "/")
}

func (s *Shell) printTotals(t checkout.Totals) error {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Subtotal (%d items)\t%s\t\n", t.Units, t.Subtotal.StringFixed(2))
	fmt.Fprintf(tw, "  incl. GST %s%%\t%s\t\n", t.Tax.Rate.Shift(2).String(), t.Tax.Tax.StringFixed(2))
	fmt.Fprintf(tw, "Shipping\t%s\t\n", t.Shipping.StringFixed(2))
	if t.CODSurcharge.IsPositive() {
		fmt.Fprintf(tw, "COD charges\t%s\t\n", t.CODSurcharge.StringFixed(2))
	}
	if t.Discount.IsPositive() {
		fmt.Fprintf(tw, "Discount\t-%s\t\n", t.Discount.StringFixed(2))
	}
	fmt.Fprintf(tw, "Total\t%s\t\n", t.GrandTotal.StringFixed(2))
	if !t.CODAllowed {
		fmt.Fprintln(tw, "Cash on delivery unavailable below the minimum order\t\t")
	}
	return tw.Flush()
}

func (s *Shell) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: kart login <userId>")
	}
	if err := s.session.Login(ctx, strings.TrimSpace(args[0])); err != nil {
		return err
	}
	if err := s.migrator.Apply(ctx, s.session.State()); err != nil {
		return errors.Wrap(err, "switch basket")
	}
	return s.show()
}

func (s *Shell) logout(ctx context.Context) error {
	if err := s.session.Logout(ctx); err != nil {
		return err
	}
	if err := s.migrator.Apply(ctx, s.session.State()); err != nil {
		return errors.Wrap(err, "switch basket")
	}
	_, err := fmt.Fprintln(s.out, "Signed out")
	return err
}

func (s *Shell) apply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	method := fs.String("payment", "", "payment method the preview assumes: cod or online")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: kart apply [-payment cod|online] <code>")
	}
	if *method != "" {
		if err := s.checkout.SelectPayment(checkout.PaymentMethod(*method)); err != nil {
			return err
		}
	}
	g, err := s.checkout.ApplyDiscount(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.out, "%s takes %s off %s\n",
		g.Code, g.Amount.StringFixed(2), g.AppliedTo.StringFixed(2)); err != nil {
		return err
	}
	return s.printTotals(s.checkout.Totals())
}

type formFlags struct {
	addr     checkout.Address
	method   string
	discount string
}

func (f *formFlags) register(fs *flag.FlagSet, withMethod bool) {
	fs.StringVar(&f.addr.Name, "name", "", "full name")
	fs.StringVar(&f.addr.Email, "email", "", "email address")
	fs.StringVar(&f.addr.Phone, "phone", "", "10 digit phone number")
	fs.StringVar(&f.addr.Address, "address", "", "street address")
	fs.StringVar(&f.addr.City, "city", "", "city")
	fs.StringVar(&f.addr.State, "state", "", "state")
	fs.StringVar(&f.addr.PostalCode, "postal-code", "", "6 digit postal code")
	fs.StringVar(&f.addr.Country, "country", checkout.DefaultCountry, "country")
	fs.StringVar(&f.discount, "discount", "", "discount code")
	if withMethod {
		fs.StringVar(&f.method, "payment", string(checkout.PaymentCOD), "payment method: cod or online")
	}
}

func (s *Shell) submit(ctx context.Context, name string, args []string, method checkout.PaymentMethod) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var ff formFlags
	ff.register(fs, method == "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if method == "" {
		method = checkout.PaymentMethod(ff.method)
	}

	if err := s.checkout.SetForm(ff.addr); err != nil {
		return err
	}
	if err := s.checkout.SelectPayment(method); err != nil {
		return err
	}
	if ff.discount != "" {
		if _, err := s.checkout.ApplyDiscount(ctx, ff.discount); err != nil {
			return err
		}
	}

	r, err := s.checkout.Submit(ctx)
	if err != nil {
		return err
	}
	if s.checkout.State() == checkout.StateAwaitingPayment {
		if r, err = s.collectPayment(ctx); err != nil {
			return err
		}
	}
	return s.printReceipt(r)
}

func (s *Shell) collectPayment(ctx context.Context) (checkout.Receipt, error) {
	proof, ok, err := s.flow.Collect()
	if err != nil {
		_ = s.checkout.AbandonPayment(ctx, err.Error())
		return checkout.Receipt{}, err
	}
	if !ok {
		return checkout.Receipt{}, s.checkout.AbandonPayment(ctx, "")
	}
	return s.checkout.CompletePayment(ctx, proof)
}

func (s *Shell) receipt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("receipt", flag.ContinueOnError)
	dismiss := fs.Bool("dismiss", false, "forget the cached receipt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dismiss {
		if err := s.checkout.Dismiss(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(s.out, "Receipt dismissed")
		return err
	}
	r, ok, err := s.checkout.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		_, err := fmt.Fprintln(s.out, "No order placed yet")
		return err
	}
	return s.printReceipt(r)
}

func (s *Shell) printReceipt(r checkout.Receipt) error {
	o := r.Order
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order %s placed %s\n", r.OrderID, r.PlacedAt.Format(time.RFC1123))
	for _, l := range o.Lines {
		fmt.Fprintf(tw, "%d x\t%s\t%s\t%s\n", l.Quantity, l.Name, variantLabel(l), l.Subtotal().StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if o.DiscountCode != "" {
		fmt.Fprintf(s.out, "Discount %s: -%s\n", o.DiscountCode, o.DiscountAmount.StringFixed(2))
	}
	payment := string(o.PaymentMethod)
	if o.Payment != nil {
		payment += " (" + o.Payment.PaymentID + ")"
	}
	_, err := fmt.Fprintf(s.out, "Paid by %s, total %s, ships to %s, %s\n",
		payment, o.GrandTotal.StringFixed(2), o.Shipping.Name, o.Shipping.City)
	return err
}

// describe renders err for the shopper.
func describe(err error) string {
	var fe checkout.FieldErrors
	if errors.As(err, &fe) {
		var b strings.Builder
		b.WriteString("please fix:")
		for _, f := range sortedFields(fe) {
			b.WriteString("\n  ")
			b.WriteString(f)
			b.WriteString(": ")
			b.WriteString(fe[f])
		}
		return b.String()
	}
	var se *checkout.SubmitError
	if errors.As(err, &se) {
		return se.Error() + " (your basket is unchanged, try again)"
	}
	return err.Error()
}

func sortedFields(fe checkout.FieldErrors) []string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
