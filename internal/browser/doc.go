// Package browser fetches pages on behalf of the crawler.
//
// A Browser is built per visit from Options and performs exactly one
// navigation. Two implementations are provided:
//
//   - HTTPBrowser: a plain net/http client. It decodes the document charset,
//     parses the markup with golang.org/x/net/html and returns links and
//     script references. It cannot evaluate scripts, so ScriptGlobal is empty.
//   - ChromeBrowser: a headless Chrome driven through chromedp. It captures
//     the document response, cookies and the rendered markup, and resolves
//     the requested script property chains inside the page.
//
// Both honour Options.MaxWait themselves and accept proxy URLs with the
// http, https and socks5 schemes. Username and Password become proxy
// credentials.
package browser
