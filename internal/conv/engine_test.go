package conv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/tisuway/walletbot/internal/payment"
	"github.com/tisuway/walletbot/internal/wallet"
)

// fakeStore is an in-memory wallet.Store with per-method failure taps.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]*wallet.Profile
	entries  map[string][]wallet.LedgerEntry
	nextID   int

	failSetState bool
	failUpdate   bool
	failCredit   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]*wallet.Profile),
		entries:  make(map[string][]wallet.LedgerEntry),
	}
}

func (s *fakeStore) Profile(_ context.Context, sender string) (*wallet.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[sender]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) Create(_ context.Context, sender, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[sender]; ok {
		return nil
	}
	s.profiles[sender] = &wallet.Profile{Sender: sender, CurrentState: state}
	return nil
}

func (s *fakeStore) Update(_ context.Context, sender string, fields wallet.Fields) error {
	if s.failUpdate {
		return errors.New("update unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[sender]
	if !ok {
		return wallet.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "first_name":
			p.FirstName = v.(string)
		case "surname":
			p.Surname = v.(string)
		case "nationality":
			p.Nationality = v.(string)
		case "address":
			p.Address = v.(string)
		case "id_type":
			p.IDType = v.(string)
		case "id_number":
			p.IDNumber = v.(string)
		case "verification_method":
			p.VerificationMethod = v.(string)
		case "passcode_hash":
			p.PasscodeHash = v.(string)
		case "registration_complete":
			p.RegistrationComplete = v.(bool)
		case "current_state":
			p.CurrentState = v.(string)
		default:
			return fmt.Errorf("unexpected field %q", k)
		}
	}
	return nil
}

func (s *fakeStore) SetState(_ context.Context, sender, state string) error {
	if s.failSetState {
		return errors.New("store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[sender]
	if !ok {
		return wallet.ErrNotFound
	}
	p.CurrentState = state
	return nil
}

func (s *fakeStore) Credit(_ context.Context, sender string, amount decimal.Decimal, entryType, description string) (*wallet.LedgerEntry, error) {
	if s.failCredit {
		return nil, errors.New("credit unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[sender]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	p.WalletBalance = p.WalletBalance.Add(amount)
	s.nextID++
	entry := wallet.LedgerEntry{
		ID:          fmt.Sprintf("entry-%d", s.nextID),
		Sender:      sender,
		Type:        entryType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
	s.entries[sender] = append(s.entries[sender], entry)
	return &entry, nil
}

func (s *fakeStore) RecentEntries(_ context.Context, sender string, limit int) ([]wallet.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[sender]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]wallet.LedgerEntry, len(all))
	copy(out, all)
	return out, nil
}

// fakeInitiator replays a scripted gateway verdict and records requests.
type fakeInitiator struct {
	mu       sync.Mutex
	result   payment.Result
	err      error
	requests []payment.Request
}

func (f *fakeInitiator) Initiate(_ context.Context, req payment.Request) (payment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return payment.Result{}, f.err
	}
	res := f.result
	if res.Reference == "" {
		res.Reference = "EFT-test"
	}
	return res, nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeStore, *fakeInitiator) {
	t.Helper()
	store := newFakeStore()
	gateway := &fakeInitiator{result: payment.Result{Success: true, Instructions: "Approve on your phone."}}
	sessions := NewMemoryManager(MemoryOptions{})
	t.Cleanup(sessions.Stop)
	return NewEngine(sessions, store, gateway), store, gateway
}

// seedRegistered installs a fully registered profile positioned at state.
func seedRegistered(t *testing.T, store *fakeStore, sender string, st State) {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	store.profiles[sender] = &wallet.Profile{
		Sender:               sender,
		FirstName:            "John",
		Surname:              "Doe",
		RegistrationComplete: true,
		CurrentState:         string(st),
	}
}

func TestHandleUnregisteredGreeting(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	if got := e.Handle(ctx, "263771234567", "hello there"); got != greetHint {
		t.Fatalf("non-greeting reply = %q, want greet hint", got)
	}
	if _, err := store.Profile(ctx, "263771234567"); !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("profile created before greeting: %v", err)
	}

	if got := e.Handle(ctx, "263771234567", "Hi"); got != welcomeText {
		t.Fatalf("greeting reply = %q, want welcome text", got)
	}
	p, err := store.Profile(ctx, "263771234567")
	if err != nil {
		t.Fatalf("profile after greeting: %v", err)
	}
	if p.CurrentState != string(StateFirstName) {
		t.Fatalf("state after greeting = %q, want %q", p.CurrentState, StateFirstName)
	}
}

func TestHandleFullRegistration(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"

	steps := []struct {
		input    string
		contains string
	}{
		{"hi", "Welcome to TISUWAY Wallet"},
		{"John", "Surname"},
		{"Doe", "Nationality"},
		{"Zimbabwean", "Residential Address"},
		{"123 Smith Street, Avondale, Harare", "Select ID Type"},
		{"1", "National ID number"},
		{"63-123456A42", "Verification Method"},
		{"1", "6-digit passcode"},
		{"123456", "Registration Complete!"},
	}
	for i, step := range steps {
		reply := e.Handle(ctx, sender, step.input)
		if !strings.Contains(reply, step.contains) {
			t.Fatalf("step %d input %q: reply %q does not contain %q", i, step.input, reply, step.contains)
		}
	}

	p, err := store.Profile(ctx, sender)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !p.RegistrationComplete {
		t.Fatal("registration_complete not set")
	}
	if p.CurrentState != string(StateMainMenu) {
		t.Fatalf("final state = %q, want %q", p.CurrentState, StateMainMenu)
	}
	if p.FirstName != "John" || p.Surname != "Doe" || p.IDType != "National ID" || p.IDNumber != "63-123456A42" {
		t.Fatalf("identity fields not captured: %+v", p)
	}
	if p.PasscodeHash == "123456" || p.PasscodeHash == "" {
		t.Fatal("passcode stored in the clear or missing")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasscodeHash), []byte("123456")); err != nil {
		t.Fatalf("passcode hash does not verify: %v", err)
	}
}

func TestHandleRegistrationRejectsInvalidInput(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	e.Handle(ctx, sender, "hi")

	tests := []struct {
		name  string
		input string
	}{
		{"too short", "J"},
		{"digits", "John99"},
		{"possessive", "McDonald's"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reply := e.Handle(ctx, sender, tc.input)
			if !strings.Contains(reply, "valid first name") {
				t.Fatalf("reply = %q, want first-name hint", reply)
			}
			p, _ := store.Profile(ctx, sender)
			if p.CurrentState != string(StateFirstName) {
				t.Fatalf("state advanced on invalid input: %q", p.CurrentState)
			}
		})
	}
}

// Pre-registration the navigation words are ordinary data for the
// current step, not commands.
func TestHandleNavigationWordsAreDataBeforeRegistration(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	e.Handle(ctx, sender, "hi")

	reply := e.Handle(ctx, sender, "Menu")
	if !strings.Contains(reply, "Surname") {
		t.Fatalf("reply = %q, want surname prompt", reply)
	}
	p, _ := store.Profile(ctx, sender)
	if p.FirstName != "Menu" {
		t.Fatalf("first name = %q, want the literal input", p.FirstName)
	}
}

func TestHandleMenuNavigation(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateMainMenu)

	reply := e.Handle(ctx, sender, "1")
	if !strings.Contains(reply, "My Wallet (Balance: $0.00)") {
		t.Fatalf("wallet menu reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateWalletMenu {
		t.Fatalf("state = %q, want %q", st, StateWalletMenu)
	}

	// Unknown option re-renders the menu and never transitions.
	reply = e.Handle(ctx, sender, "42")
	if !strings.Contains(reply, "My Wallet") {
		t.Fatalf("unknown option reply = %q, want wallet menu again", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateWalletMenu {
		t.Fatalf("state moved on unknown option: %q", st)
	}

	// Coming-soon leaves stay in place.
	e.Handle(ctx, sender, "back")
	reply = e.Handle(ctx, sender, "3")
	if !strings.Contains(reply, "coming soon") {
		t.Fatalf("coming soon reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateMainMenu {
		t.Fatalf("state moved on coming-soon option: %q", st)
	}
}

func TestHandleBackWalksEveryParent(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	states := make([]State, 0, len(parentOf))
	for st := range parentOf {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

	for i, st := range states {
		sender := fmt.Sprintf("26377000%04d", i)
		seedRegistered(t, store, sender, st)

		parent := parentOf[st]
		prof, _ := store.Profile(ctx, sender)
		want := e.promptFor(parent, prof)

		if got := e.Handle(ctx, sender, "back"); got != want {
			t.Errorf("back from %q: reply = %q, want parent prompt %q", st, got, want)
		}
		if got := e.sessions.StateOf(sender); got != parent {
			t.Errorf("back from %q: state = %q, want %q", st, got, parent)
		}
		prof, _ = store.Profile(ctx, sender)
		if prof.CurrentState != string(parent) {
			t.Errorf("back from %q: durable state = %q, want %q", st, prof.CurrentState, parent)
		}
	}
}

func TestHandleBackAtRoot(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateMainMenu)

	if got := e.Handle(ctx, sender, "back"); got != cannotGoBackText {
		t.Fatalf("reply = %q, want cannot-go-back text", got)
	}
	if st := e.sessions.StateOf(sender); st != StateMainMenu {
		t.Fatalf("state = %q, want unchanged main menu", st)
	}
}

func TestHandleMenuFromAnyState(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateEcocashConfirm)

	if got := e.Handle(ctx, sender, "MENU"); got != mainMenu() {
		t.Fatalf("reply = %q, want main menu", got)
	}
	if st := e.sessions.StateOf(sender); st != StateMainMenu {
		t.Fatalf("state = %q, want %q", st, StateMainMenu)
	}
}

func TestHandleDepositRoundTrip(t *testing.T) {
	e, store, gateway := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateMainMenu)

	e.Handle(ctx, sender, "1") // wallet
	e.Handle(ctx, sender, "1") // EFT
	reply := e.Handle(ctx, sender, "1")
	if !strings.Contains(reply, "EcoCash registered phone number") {
		t.Fatalf("phone prompt = %q", reply)
	}

	reply = e.Handle(ctx, sender, "0771234567")
	if !strings.Contains(reply, "amount to deposit") {
		t.Fatalf("amount prompt = %q", reply)
	}

	reply = e.Handle(ctx, sender, "25.5")
	if !strings.Contains(reply, "0771234567") || !strings.Contains(reply, "$25.50") {
		t.Fatalf("confirm prompt = %q", reply)
	}

	reply = e.Handle(ctx, sender, "1")
	if !strings.Contains(reply, "Payment initiated successfully!") {
		t.Fatalf("confirm reply = %q", reply)
	}
	if !strings.Contains(reply, "$25.50 has been credited") {
		t.Fatalf("confirm reply missing credited amount: %q", reply)
	}

	if len(gateway.requests) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(gateway.requests))
	}
	req := gateway.requests[0]
	if req.Phone != "0771234567" || !req.Amount.Equal(decimal.RequireFromString("25.5")) || req.Channel != "ecocash" {
		t.Fatalf("gateway request = %+v", req)
	}

	p, _ := store.Profile(ctx, sender)
	if !p.WalletBalance.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("balance = %s, want 25.5", p.WalletBalance)
	}
	entries, _ := store.RecentEntries(ctx, sender, 10)
	if len(entries) != 1 || entries[0].Type != wallet.EntryDeposit {
		t.Fatalf("ledger entries = %+v, want one deposit", entries)
	}

	if st := e.sessions.StateOf(sender); st != StateEFTMenu {
		t.Fatalf("state after success = %q, want %q", st, StateEFTMenu)
	}
	if _, ok := e.sessions.Data(sender, dataDepositAmount); ok {
		t.Fatal("deposit scratch not cleared after success")
	}
}

func TestHandleDepositCancel(t *testing.T) {
	e, store, gateway := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateEFTMenu)

	e.Handle(ctx, sender, "1")
	e.Handle(ctx, sender, "0781234567")
	e.Handle(ctx, sender, "10")

	reply := e.Handle(ctx, sender, "2")
	if !strings.Contains(reply, "Select Payment Method") {
		t.Fatalf("cancel reply = %q, want EFT menu", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateEFTMenu {
		t.Fatalf("state after cancel = %q", st)
	}
	if len(gateway.requests) != 0 {
		t.Fatal("gateway called on cancel")
	}
	p, _ := store.Profile(ctx, sender)
	if !p.WalletBalance.IsZero() {
		t.Fatalf("balance changed on cancel: %s", p.WalletBalance)
	}
	if _, ok := e.sessions.Data(sender, dataDepositPhone); ok {
		t.Fatal("scratch survived cancel")
	}
}

func TestHandleDepositInvalidInputs(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateEFTMenu)
	e.Handle(ctx, sender, "1")

	if reply := e.Handle(ctx, sender, "0711234567"); !strings.Contains(reply, "Invalid phone number") {
		t.Fatalf("bad phone reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateEcocashPhone {
		t.Fatalf("state after bad phone = %q", st)
	}

	e.Handle(ctx, sender, "0771234567")
	if reply := e.Handle(ctx, sender, "-4"); !strings.Contains(reply, "Invalid amount") {
		t.Fatalf("bad amount reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateEcocashAmount {
		t.Fatalf("state after bad amount = %q", st)
	}

	e.Handle(ctx, sender, "10")
	if reply := e.Handle(ctx, sender, "maybe"); !strings.Contains(reply, "Invalid selection") {
		t.Fatalf("bad confirm reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateEcocashConfirm {
		t.Fatalf("state after bad confirm = %q", st)
	}
}

func TestHandleDepositGatewayRejection(t *testing.T) {
	e, store, gateway := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateEFTMenu)
	gateway.result = payment.Result{Success: false, Error: "Insufficient funds"}

	e.Handle(ctx, sender, "1")
	e.Handle(ctx, sender, "0771234567")
	e.Handle(ctx, sender, "10")

	reply := e.Handle(ctx, sender, "1")
	if !strings.Contains(reply, "Payment initiation failed: Insufficient funds") {
		t.Fatalf("rejection reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateEcocashConfirm {
		t.Fatalf("state after rejection = %q, want confirm retained", st)
	}
	p, _ := store.Profile(ctx, sender)
	if !p.WalletBalance.IsZero() {
		t.Fatalf("balance changed on rejection: %s", p.WalletBalance)
	}

	// Scratch survives, so a manual retry succeeds without re-entry.
	gateway.result = payment.Result{Success: true}
	reply = e.Handle(ctx, sender, "1")
	if !strings.Contains(reply, "Payment initiated successfully!") {
		t.Fatalf("retry reply = %q", reply)
	}
	if !mustProfile(t, store, sender).WalletBalance.Equal(decimal.RequireFromString("10")) {
		t.Fatal("retry did not credit")
	}
}

func TestHandleDepositGatewayUnreachable(t *testing.T) {
	e, store, gateway := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateEFTMenu)
	gateway.err = errors.New("dial tcp: connection refused")

	e.Handle(ctx, sender, "1")
	e.Handle(ctx, sender, "0771234567")
	e.Handle(ctx, sender, "10")

	reply := e.Handle(ctx, sender, "1")
	if !strings.Contains(reply, "payment service is unavailable") {
		t.Fatalf("unreachable reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateEcocashConfirm {
		t.Fatalf("state after transport error = %q", st)
	}
	if !mustProfile(t, store, sender).WalletBalance.IsZero() {
		t.Fatal("balance changed on transport error")
	}
}

func TestHandleStoreFailureKeepsState(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateMainMenu)

	// Seed the session, then make persistence fail.
	e.Handle(ctx, sender, "0")
	store.failSetState = true

	if got := e.Handle(ctx, sender, "1"); got != somethingWrongText {
		t.Fatalf("reply = %q, want generic apology", got)
	}
	if st := e.sessions.StateOf(sender); st != StateMainMenu {
		t.Fatalf("state = %q, want unchanged on store failure", st)
	}
}

func TestHandleBalanceAndHistory(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateWalletMenu)

	reply := e.Handle(ctx, sender, "5")
	if !strings.Contains(reply, "Balance: $0.00") || !strings.Contains(reply, "No transactions yet") {
		t.Fatalf("empty history reply = %q", reply)
	}

	if _, err := store.Credit(ctx, sender, decimal.RequireFromString("15.00"), wallet.EntryDeposit, "EcoCash deposit EFT-1"); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	reply = e.Handle(ctx, sender, "5")
	if !strings.Contains(reply, "Balance: $15.00") || !strings.Contains(reply, "EcoCash deposit EFT-1") {
		t.Fatalf("history reply = %q", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateWalletMenu {
		t.Fatalf("state after history = %q, want wallet menu retained", st)
	}
}

// A fresh session resumes from the durable state mirror.
func TestHandleResumesFromDurableState(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	sender := "263771234567"
	seedRegistered(t, store, sender, StateZimServicesMenu)

	reply := e.Handle(ctx, sender, "option?")
	if !strings.Contains(reply, "Zimbabwe Services:") {
		t.Fatalf("resume reply = %q, want Zimbabwe Services menu", reply)
	}
	if st := e.sessions.StateOf(sender); st != StateZimServicesMenu {
		t.Fatalf("resumed state = %q", st)
	}
}

func TestHandleSendersAreIsolated(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedRegistered(t, store, "sender-a", StateMainMenu)
	seedRegistered(t, store, "sender-b", StateMainMenu)

	e.Handle(ctx, "sender-a", "1")
	e.Handle(ctx, "sender-b", "2")

	if st := e.sessions.StateOf("sender-a"); st != StateWalletMenu {
		t.Fatalf("sender-a state = %q", st)
	}
	if st := e.sessions.StateOf("sender-b"); st != StateZimServicesMenu {
		t.Fatalf("sender-b state = %q", st)
	}
}

func TestHandleConcurrentTurns(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	const senders = 8
	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		sender := fmt.Sprintf("26377%07d", i)
		seedRegistered(t, store, sender, StateMainMenu)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < turns; j++ {
				e.Handle(ctx, sender, "1")
				e.Handle(ctx, sender, "back")
			}
		}()
	}
	wg.Wait()

	for i := 0; i < senders; i++ {
		sender := fmt.Sprintf("26377%07d", i)
		if st := e.sessions.StateOf(sender); st != StateMainMenu {
			t.Fatalf("%s ended at %q, want main menu", sender, st)
		}
	}
}

func mustProfile(t *testing.T, store *fakeStore, sender string) *wallet.Profile {
	t.Helper()
	p, err := store.Profile(context.Background(), sender)
	if err != nil {
		t.Fatalf("profile %s: %v", sender, err)
	}
	return p
}
