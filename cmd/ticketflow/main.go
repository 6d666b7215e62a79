package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"ticketflow/internal/api"
	"ticketflow/internal/booking"
	"ticketflow/internal/config"
	"ticketflow/internal/models"
	"ticketflow/internal/offer"
	"ticketflow/internal/session"
	"ticketflow/internal/waitlist"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	store, err := session.Open(cfg.State.Path)
	if err != nil {
		log.Fatal("Failed to open state store:", err)
	}
	defer store.Close()

	client := api.NewClient(cfg.Gateway.URL, store)

	switch os.Args[1] {
	case "login":
		runLogin(client, store, os.Args[2:])
	case "book":
		runBook(cfg, client, store, os.Args[2:])
	case "waitlist":
		runWaitlist(cfg, client, store, os.Args[2:])
	case "status":
		runStatus(client, store, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  ticketflow login -email <email> -password <password>
  ticketflow book <event-id> [-q quantity] [-method payment-method]
  ticketflow waitlist <event-id> [-q quantity]
  ticketflow status <event-id>`)
}

func runLogin(client *api.Client, store *session.Store, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)
	if *email == "" || *password == "" {
		log.Fatal("email and password are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	resp, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.Fatal("Login failed: ", err)
	}
	if err := store.SaveCredentials(resp.User, resp.AccessToken, resp.RefreshToken); err != nil {
		log.Fatal("Failed to save credentials: ", err)
	}
	fmt.Printf("Signed in as %s\n", resp.User.Email)
}

func requireUser(store *session.Store) *models.User {
	user := store.CurrentUser()
	if user == nil || !store.Authenticated() {
		log.Fatal("Not signed in. Run: ticketflow login")
	}
	return user
}

// runBook drives the reserve → pay → confirm flow for one event. A
// reservation persisted by an earlier run is resumed first, so an
// interrupted booking picks up with whatever time is left on its hold.
func runBook(cfg *config.Config, client *api.Client, store *session.Store, args []string) {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	quantity := fs.Int("q", 1, "ticket quantity")
	method := fs.String("method", "credit_card", "payment method")
	fromOffer := fs.Bool("from-offer", false, "booking derives from an accepted waitlist offer")
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal("event ID is required")
	}
	eventID := fs.Arg(0)
	user := requireUser(store)

	ctx := context.Background()
	event, err := client.GetEvent(ctx, eventID)
	if err != nil {
		log.Fatal("Failed to fetch event: ", err)
	}

	opts := []booking.Option{
		booking.WithStore(store),
		booking.WithMaxPerBooking(event.MaxTicketsPerBooking),
		booking.WithExpiredFunc(func() {
			fmt.Println("\nYour reservation has expired; seats were returned.")
		}),
	}
	if *fromOffer {
		opts = append(opts, booking.FromOffer())
	}
	flow := booking.New(client, user.UserID, eventID, opts...)
	defer flow.Close()

	if saved, savedFromOffer, err := store.LoadReservation(eventID); err != nil {
		log.Printf("Could not load saved reservation: %v", err)
	} else if saved != nil {
		fmt.Printf("Resuming reservation %s\n", saved.BookingReference)
		flow.Resume(saved, savedFromOffer)
	}

	if flow.Step() == booking.StepBrowsing {
		if err := flow.SetQuantity(*quantity); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Reserving %d ticket(s) for %s ($%.2f each)...\n",
			flow.Quantity(), event.Name, event.BasePrice)
		if err := flow.Reserve(ctx); err != nil {
			log.Fatal("Reservation failed: ", err)
		}
	}

	if flow.Step() != booking.StepReserved {
		if msg := flow.Message(); msg != "" {
			log.Fatal(msg)
		}
		log.Fatal("No active reservation")
	}

	res := flow.Reservation()
	fmt.Printf("Reserved! Reference %s, total $%.2f\n", res.BookingReference, res.TotalAmount)
	fmt.Printf("Complete payment within %s. Press Enter to pay with %s...\n",
		formatDuration(flow.Remaining()), *method)
	waitForEnter()

	if err := flow.Confirm(ctx, *method, "mock-payment-token"); err != nil {
		if errors.Is(err, models.ErrReservationExpired) {
			log.Fatal(flow.Message())
		}
		log.Fatal("Payment failed: ", err)
	}

	booked := flow.Booking()
	fmt.Printf("Booking confirmed! Reference %s\n", booked.BookingReference)
	if booked.TicketURL != "" {
		fmt.Printf("Tickets: %s\n", booked.TicketURL)
	}
}

// runWaitlist joins the event's waitlist if needed, then watches it,
// routing status updates either to a position display or into the
// offer flow when the user's turn arrives.
func runWaitlist(cfg *config.Config, client *api.Client, store *session.Store, args []string) {
	fs := flag.NewFlagSet("waitlist", flag.ExitOnError)
	quantity := fs.Int("q", 1, "ticket quantity")
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal("event ID is required")
	}
	eventID := fs.Arg(0)
	user := requireUser(store)

	ctx := context.Background()
	if _, err := client.GetWaitlistPosition(ctx, eventID); errors.Is(err, models.ErrNotOnWaitlist) {
		joined, err := client.JoinWaitlist(ctx, eventID, *quantity)
		if err != nil {
			log.Fatal("Failed to join waitlist: ", err)
		}
		fmt.Printf("Joined waitlist at position %d (%s)\n", joined.Position, joined.EstimatedWait)
	} else if err != nil {
		log.Fatal("Failed to check waitlist: ", err)
	}

	offers := make(chan *models.WaitlistEntry, 1)
	var poller *waitlist.Poller
	poller = waitlist.New(client, eventID, waitlist.Config{
		Interval:   cfg.Poll.Interval,
		Authorized: store.Authenticated,
		OnStatusChange: func(current, previous *models.WaitlistEntry) {
			if current.Status == models.WaitlistStatusWaiting {
				fmt.Printf("Position %d of %d (%s)\n",
					current.Position, current.TotalWaiting, current.EstimatedWait)
			}
		},
		OnOffer: func(current *models.WaitlistEntry) {
			select {
			case offers <- current:
			default:
			}
		},
		OnOfferExpired: func(current *models.WaitlistEntry) {
			fmt.Println("Your offer expired; back on the waitlist.")
		},
	})
	if err := poller.Start(ctx); err != nil {
		log.Fatal("Failed to start polling: ", err)
	}
	defer poller.Stop()

	fmt.Println("Watching waitlist. Ctrl-C to stop.")
	for entry := range offers {
		if handleOffer(ctx, cfg, client, store, user, eventID, entry, poller) {
			return
		}
	}
}

// handleOffer resolves one offer window. Returns true when the watch
// loop should end (accepted and booked, or declined).
func handleOffer(ctx context.Context, cfg *config.Config, client *api.Client, store *session.Store,
	user *models.User, eventID string, entry *models.WaitlistEntry, poller *waitlist.Poller) bool {

	expired := make(chan struct{}, 1)
	current, err := offer.New(eventID, entry, offer.Config{
		Refresh: poller.Refresh,
		Callbacks: offer.Callbacks{
			OnExpired: func() {
				select {
				case expired <- struct{}{}:
				default:
				}
			},
		},
	})
	if err != nil {
		log.Printf("Ignoring malformed offer: %v", err)
		return false
	}
	current.Start()
	defer current.Close()

	fmt.Printf("\nYour turn! %d ticket(s) held for you. %s remaining.\n",
		current.Quantity(), formatDuration(current.Remaining()))
	fmt.Println("Accept and book? [y/N]")

	answers := make(chan string, 1)
	go func() { answers <- readLine() }()

	select {
	case <-expired:
		fmt.Println("Offer expired before you answered. Re-checking waitlist status...")
		current.ReturnToWaitlist()
		return false
	case answer := <-answers:
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			if err := current.Decline(); err != nil {
				log.Printf("Could not decline: %v", err)
				return false
			}
			if err := client.LeaveWaitlist(ctx, eventID); err != nil && !errors.Is(err, models.ErrNotOnWaitlist) {
				log.Printf("Failed to leave waitlist: %v", err)
			}
			fmt.Println("Offer declined.")
			return true
		}

		quantity, err := current.Accept()
		if err != nil {
			fmt.Println("Offer is no longer available. Re-checking waitlist status...")
			current.ReturnToWaitlist()
			return false
		}
		poller.Stop()
		bookOfferedSeats(ctx, client, store, user, eventID, quantity)
		return true
	}
}

// bookOfferedSeats runs the booking flow for an accepted offer: the
// quantity is pre-filled and the availability pre-check is skipped.
func bookOfferedSeats(ctx context.Context, client *api.Client, store *session.Store,
	user *models.User, eventID string, quantity int) {

	flow := booking.New(client, user.UserID, eventID,
		booking.WithStore(store),
		booking.FromOffer(),
	)
	defer flow.Close()

	if err := flow.SetQuantity(quantity); err != nil {
		log.Fatal(err)
	}
	if err := flow.Reserve(ctx); err != nil {
		log.Fatal("Reservation failed: ", err)
	}

	res := flow.Reservation()
	fmt.Printf("Reserved! Reference %s, total $%.2f\n", res.BookingReference, res.TotalAmount)
	fmt.Printf("Complete payment within %s. Press Enter to pay...\n", formatDuration(flow.Remaining()))
	waitForEnter()

	if err := flow.Confirm(ctx, "credit_card", "mock-payment-token"); err != nil {
		if errors.Is(err, models.ErrReservationExpired) {
			log.Fatal(flow.Message())
		}
		log.Fatal("Payment failed: ", err)
	}
	fmt.Printf("Booking confirmed! Reference %s\n", flow.Booking().BookingReference)
}

func runStatus(client *api.Client, store *session.Store, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		log.Fatal("event ID is required")
	}
	eventID := fs.Arg(0)
	requireUser(store)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if saved, _, err := store.LoadReservation(eventID); err == nil && saved != nil {
		if saved.Valid(time.Now()) {
			fmt.Printf("Active reservation %s, %s remaining\n",
				saved.BookingReference, formatDuration(saved.Remaining(time.Now())))
		} else {
			fmt.Printf("Saved reservation %s has expired\n", saved.BookingReference)
		}
	}

	entry, err := client.GetWaitlistPosition(ctx, eventID)
	if errors.Is(err, models.ErrNotOnWaitlist) {
		fmt.Println("Not on the waitlist for this event.")
		return
	}
	if err != nil {
		log.Fatal("Failed to fetch waitlist status: ", err)
	}
	switch {
	case entry.Offered():
		fmt.Printf("Offer active for %d ticket(s), expires at %s\n",
			entry.QuantityRequested, entry.ExpiresAt.Local().Format(time.Kitchen))
	default:
		fmt.Printf("Waitlist position %d of %d (%s)\n",
			entry.Position, entry.TotalWaiting, entry.EstimatedWait)
	}
}

func formatDuration(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func readLine() string {
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return line
}

func waitForEnter() {
	readLine()
}
