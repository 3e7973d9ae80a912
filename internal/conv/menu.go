package conv

import (
	"fmt"

	"github.com/tisuway/walletbot/internal/wallet"
)

// Menu catalog: the display text of every menu plus shared reply
// fragments. Prompts that depend on the durable profile (wallet balance)
// take it as an argument.

const navFooter = "\nReply with a number to select an option."

const welcomeText = `Welcome to TISUWAY Wallet!

Let's get you registered. Please enter your First Name.

(Type 'menu' anytime to return to main menu after registration)
(Type 'back' to go back one step in the menu)`

const greetHint = "Welcome to TISUWAY Wallet! Reply 'hi' to get started."

const somethingWrongText = "Sorry, something went wrong. Please try again later."

const cannotGoBackText = "Cannot go back from here. Type 'menu' to return to main menu."

func mainMenu() string {
	return `Main Menu:
1. My Wallet
2. Zimbabwe Services
3. South Africa Services
4. Order Groceries
5. Merchant Services
6. Help & Support
` + navFooter
}

func walletMenu(p *wallet.Profile) string {
	return fmt.Sprintf(`My Wallet (Balance: $%s)
1. EFT Deposit
2. Voucher Deposit
3. Buy Voucher
4. Send Token
5. Balance and History
6. Back to Main Menu
`+navFooter, p.WalletBalance.StringFixed(2))
}

func eftMenu() string {
	return `Select Payment Method:
1. ECOCASH
2. ONEMONEY
3. CBZ
4. STANDARD BANK
` + navFooter + `
Type 'back' to return to Wallet Menu
Type 'menu' for Main Menu`
}

func voucherMenu() string {
	return `Select Voucher Type:
1. NEDBANK CashOut
2. OTT
3. STANDARD BANK CashOut
4. 1 Voucher
` + navFooter + `
Type 'back' to return to Wallet Menu
Type 'menu' for Main Menu`
}

func buyVoucherMenu() string {
	return `Select Voucher Type:
1. Blu Voucher
2. Hollywood
` + navFooter + `
Type 'back' to return to Wallet Menu
Type 'menu' for Main Menu`
}

func zimServicesMenu() string {
	return `Zimbabwe Services:
1. Buy Airtime
2. Buy Data
3. Pay DSTV
4. Pay ZESA
5. Pay Nyaradzo
6. Pay Liquid Home
7. Back to Main Menu

Type 'back' to return to Main Menu
Type 'menu' for Main Menu`
}

func airtimeMenu() string {
	return `Select Network Provider:
1. ECONET
2. NETONE
3. TELECEL
4. Airtime Voucher(PIN)
` + navFooter + `
Type 'back' to return to Zimbabwe Services
Type 'menu' for Main Menu`
}

func dataMenu() string {
	return `Select Network Provider:
1. ECONET
2. NETONE
3. TELECEL
` + navFooter + `
Type 'back' to return to Zimbabwe Services
Type 'menu' for Main Menu`
}

func dstvMenu() string {
	return `Select Payment Method:
1. Use my balance
2. Use Ecocash USD
3. Use Ecocash ZiG
4. Use InnBucks
` + navFooter + `
Type 'back' to return to Zimbabwe Services
Type 'menu' for Main Menu`
}

func zesaMenu() string {
	return `ZESA Services:
1. Buy Token
2. View Token
` + navFooter + `
Type 'back' to return to Zimbabwe Services
Type 'menu' for Main Menu`
}

func comingSoon(feature, backTarget string) string {
	return fmt.Sprintf(`You selected: %s

This feature is coming soon!
Type 'back' to return to %s
Type 'menu' for Main Menu`, feature, backTarget)
}

func leafPrompt(selection, ask, backTarget string) string {
	return fmt.Sprintf(`You selected: %s

%s
Type 'back' to return to %s
Type 'menu' for Main Menu`, selection, ask, backTarget)
}

func ecocashPhonePrompt() string {
	return `Please enter your EcoCash registered phone number:

Format: 077xxxxxxx
Type 'back' to return to payment methods
Type 'menu' for Main Menu`
}

func ecocashAmountPrompt() string {
	return `Enter amount to deposit (USD):

Type 'back' to re-enter phone number
Type 'menu' for Main Menu`
}

func ecocashConfirmPrompt(phone, amount string) string {
	return fmt.Sprintf(`Confirm Payment Details:
Phone Number: %s
Amount: $%s

1. Confirm
2. Cancel

Type 'back' to re-enter amount
Type 'menu' for Main Menu`, phone, amount)
}

// promptFor renders the canonical prompt of any post-registration state.
// The universal "back" command uses it to re-render the parent.
func (e *Engine) promptFor(st State, p *wallet.Profile) string {
	switch st {
	case StateMainMenu:
		return mainMenu()
	case StateWalletMenu:
		return walletMenu(p)
	case StateEFTMenu:
		return eftMenu()
	case StateVoucherMenu:
		return voucherMenu()
	case StateBuyVoucherMenu:
		return buyVoucherMenu()
	case StateZimServicesMenu:
		return zimServicesMenu()
	case StateAirtimeMenu:
		return airtimeMenu()
	case StateDataMenu:
		return dataMenu()
	case StateDSTVMenu:
		return dstvMenu()
	case StateZESAMenu:
		return zesaMenu()
	case StateEcocashPhone:
		return ecocashPhonePrompt()
	case StateEcocashAmount:
		return ecocashAmountPrompt()
	default:
		return mainMenu()
	}
}
