// Package conv implements the conversation engine: a per-sender finite-state
// machine covering identity registration, the service menu tree, and the
// guided mobile-money deposit flow.
package conv

// State identifies one step of the conversation state machine.
type State string

const (
	// StateNone marks a session that has not been seeded yet.
	StateNone State = ""

	// Registration steps.
	StateWelcome      State = "welcome"
	StateFirstName    State = "first_name"
	StateSurname      State = "surname"
	StateNationality  State = "nationality"
	StateAddress      State = "address"
	StateIDType       State = "id_type"
	StateIDNumber     State = "id_number"
	StateVerification State = "verification"
	StatePasscode     State = "passcode"

	// Menu states.
	StateMainMenu        State = "main_menu"
	StateWalletMenu      State = "wallet_menu"
	StateEFTMenu         State = "eft_menu"
	StateVoucherMenu     State = "voucher_menu"
	StateBuyVoucherMenu  State = "buy_voucher_menu"
	StateZimServicesMenu State = "zim_services_menu"
	StateAirtimeMenu     State = "airtime_menu"
	StateDataMenu        State = "data_menu"
	StateDSTVMenu        State = "dstv_menu"
	StateZESAMenu        State = "zesa_menu"

	// EcoCash deposit sub-flow.
	StateEcocashPhone   State = "ecocash_phone"
	StateEcocashAmount  State = "ecocash_amount"
	StateEcocashConfirm State = "ecocash_confirm"
)

// parentOf is the static flow tree walked by the universal "back" command.
// States absent from the map have no back target.
var parentOf = map[State]State{
	StateWalletMenu:      StateMainMenu,
	StateEFTMenu:         StateWalletMenu,
	StateVoucherMenu:     StateWalletMenu,
	StateBuyVoucherMenu:  StateWalletMenu,
	StateZimServicesMenu: StateMainMenu,
	StateAirtimeMenu:     StateZimServicesMenu,
	StateDataMenu:        StateZimServicesMenu,
	StateDSTVMenu:        StateZimServicesMenu,
	StateZESAMenu:        StateZimServicesMenu,
	StateEcocashPhone:    StateEFTMenu,
	StateEcocashAmount:   StateEcocashPhone,
	StateEcocashConfirm:  StateEcocashAmount,
}

// ParentOf returns the back target for a state, if it has one.
func ParentOf(st State) (State, bool) {
	parent, ok := parentOf[st]
	return parent, ok
}

// idTypeOptions are the selectable identity document types.
var idTypeOptions = []string{"National ID", "Passport", "Drivers License"}

// verificationOptions are the selectable verification channels.
var verificationOptions = []string{"SMS", "Email", "Voice Call"}

// Scratch keys used by the deposit sub-flow.
const (
	dataDepositChannel = "pending_channel"
	dataDepositPhone   = "pending_phone"
	dataDepositAmount  = "pending_amount"
)
